package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/encorefm/encore/internal/adapters/http/api"
	app "github.com/encorefm/encore/internal/app"
	"github.com/encorefm/encore/internal/config"
)

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("ENCORE_ADDR", ":8080")
			_ = os.Setenv("ENCORE_STORE_MODE", "memory")
			_ = os.Setenv("ENCORE_AUTH_DISABLED", "true")
			defer func() {
				_ = os.Unsetenv("ENCORE_ADDR")
				_ = os.Unsetenv("ENCORE_STORE_MODE")
				_ = os.Unsetenv("ENCORE_AUTH_DISABLED")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StoreMode, convey.ShouldEqual, "memory")
			})
		})

		convey.Convey("When testing service creation", func() {
			convey.Convey("Then service should be creatable with default options", func() {
				svc := app.New()
				convey.So(svc, convey.ShouldNotBeNil)
			})

			convey.Convey("And service should be creatable with custom options", func() {
				svc := app.New(
					app.WithDedupeSize(1000),
					app.WithNotifyBuffer(16),
					app.WithMaxLeaderboardLimit(25),
					app.WithReconcileInterval(0),
				)
				convey.So(svc, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When testing HTTP server creation", func() {
			svc := app.New()
			convey.So(svc, convey.ShouldNotBeNil)

			convey.Convey("Then HTTP server should be creatable", func() {
				auth := api.NewAuth("", true)
				server := api.NewServer(svc, nil, svc, auth, []string{"*"})
				convey.So(server, convey.ShouldNotBeNil)
				convey.So(server.Router(), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing the service metrics updater", func() {
			svc := app.New()
			convey.So(svc, convey.ShouldNotBeNil)

			convey.Convey("Then it should run until its context ends", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startServiceMetricsUpdater(ctx, svc)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing a service metrics update", func() {
			svc := app.New()
			convey.So(svc, convey.ShouldNotBeNil)

			convey.Convey("Then it should tolerate a service that never started", func() {
				convey.So(func() {
					updateServiceMetrics(svc)
				}, convey.ShouldNotPanic)
			})
		})
	})
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given main application error handling", t, func() {
		convey.Convey("When the listen address is cleared", func() {
			_ = os.Setenv("ENCORE_ADDR", "")
			_ = os.Setenv("ENCORE_AUTH_DISABLED", "true")
			defer func() {
				_ = os.Unsetenv("ENCORE_ADDR")
				_ = os.Unsetenv("ENCORE_AUTH_DISABLED")
			}()

			convey.Convey("Then configuration loading should fail", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the persistence mode is unknown", func() {
			_ = os.Setenv("ENCORE_STORE_MODE", "redis")
			_ = os.Setenv("ENCORE_AUTH_DISABLED", "true")
			defer func() {
				_ = os.Unsetenv("ENCORE_STORE_MODE")
				_ = os.Unsetenv("ENCORE_AUTH_DISABLED")
			}()

			convey.Convey("Then configuration loading should fail", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When auth is enabled without a signing secret", func() {
			convey.Convey("Then configuration loading should fail", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestMainApplicationResourceCleanup(t *testing.T) {
	convey.Convey("Given main application resource cleanup", t, func() {
		convey.Convey("When creating a service without starting it", func() {
			svc := app.New()
			convey.So(svc, convey.ShouldNotBeNil)

			convey.Convey("Then stats should be readable and stop should be safe", func() {
				stats := svc.GetStats()
				convey.So(stats, convey.ShouldNotBeNil)
				convey.So(stats["started"], convey.ShouldEqual, false)

				convey.So(svc.Stop, convey.ShouldNotPanic)
			})
		})
	})
}
