// Package eventfx wires an eventflow Bus into a go.uber.org/fx application.
//
// The module provides a *eventflow.Bus and its *eventflow.AutoDisposeRegistry.
// An optional eventflow.BusConfig in the graph configures the bus; without
// one DefaultBusConfig is used. On stop every owner is disposed and every
// remaining listener is removed.
//
//	app := fx.New(
//	    eventfx.Module(),
//	    fx.Invoke(func(bus *eventflow.Bus) {
//	        eventflow.On(bus, "user.created", eventflow.Func(onUserCreated))
//	    }),
//	)
package eventfx

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/randalmurphal/eventflow/pkg/eventflow"
)

// Name is the fx module name.
const Name = "eventflow"

// Module returns the fx module.
func Module() fx.Option {
	return fx.Module(Name,
		fx.Provide(ProvideBus),
		fx.Invoke(registerLifecycle),
	)
}

// Params are the optional inputs of ProvideBus.
type Params struct {
	fx.In

	Config *eventflow.BusConfig `optional:"true"`
	Logger *slog.Logger         `optional:"true"`
}

// Result is the output of ProvideBus.
type Result struct {
	fx.Out

	Bus    *eventflow.Bus
	Owners *eventflow.AutoDisposeRegistry
}

// ProvideBus validates the configured BusConfig and builds the bus.
// A Logger in the graph replaces an unset BusConfig.Logger.
func ProvideBus(p Params) (Result, error) {
	config := eventflow.DefaultBusConfig
	if p.Config != nil {
		config = *p.Config
		if err := config.Validate(); err != nil {
			return Result{}, err
		}
	}
	if config.Logger == nil && p.Logger != nil {
		config.Logger = p.Logger
	}

	bus := eventflow.NewBus(config)
	return Result{
		Bus:    bus,
		Owners: bus.Owners(),
	}, nil
}

type lifecycleInput struct {
	fx.In

	LC     fx.Lifecycle
	Bus    *eventflow.Bus
	Owners *eventflow.AutoDisposeRegistry
}

func registerLifecycle(in lifecycleInput) {
	in.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			err := in.Owners.Close()
			in.Bus.ClearAll()
			return err
		},
	})
}
