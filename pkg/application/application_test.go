package application

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type widgetService struct{ name string }

type stubController struct{ key string }

func (c stubController) Register(r *mux.Router) {
	r.HandleFunc(c.key, func(http.ResponseWriter, *http.Request) {})
}

func (c stubController) Key() string { return c.key }

type stubModule struct {
	name string
	err  error
}

func (m stubModule) Register(app Application) error {
	if m.err != nil {
		return m.err
	}
	app.RegisterServices(&widgetService{name: m.name})
	return nil
}

func (m stubModule) Name() string { return m.name }

func TestApplication_ServiceRegistry(t *testing.T) {
	app := New(&ApplicationOptions{})
	app.RegisterServices(&widgetService{name: "w"})

	svc := app.Service(widgetService{}).(*widgetService)
	require.Equal(t, "w", svc.name)
	require.Len(t, app.Services(), 1)

	require.Panics(t, func() { app.Service(struct{ x int }{}) })
}

func TestApplication_ControllersAreSortedByKey(t *testing.T) {
	app := New(&ApplicationOptions{})
	app.RegisterControllers(stubController{key: "/b"}, stubController{key: "/a"})

	got := app.Controllers()
	require.Len(t, got, 2)
	require.Equal(t, "/a", got[0].Key())
	require.Equal(t, "/b", got[1].Key())
}

func TestApplication_Runners(t *testing.T) {
	app := New(&ApplicationOptions{})
	app.RegisterRunners(Runner{Name: "relay", Run: func(context.Context) error { return nil }})
	require.Len(t, app.Runners(), 1)
	require.Equal(t, "relay", app.Runners()[0].Name)
}

func TestLoadModules(t *testing.T) {
	app := New(&ApplicationOptions{})
	boom := errors.New("boom")

	err := LoadModules(app, stubModule{name: "ok"}, stubModule{name: "bad", err: boom})
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "register module bad")
	require.NotNil(t, app.Service(widgetService{}))
}
