package modules

import (
	"github.com/iota-uz/changeorders/modules/changeorders"
	"github.com/iota-uz/changeorders/pkg/application"
	"github.com/iota-uz/changeorders/pkg/configuration"
)

// BuiltInModules lists the modules every server process registers.
func BuiltInModules(conf *configuration.Configuration) []application.Module {
	return []application.Module{
		changeorders.NewModule(changeorders.OptionsFrom(conf)),
	}
}

func Load(app application.Application, externalModules ...application.Module) error {
	return application.LoadModules(app, externalModules...)
}
