package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/okian/matchloop/internal/domain/learning"
	"github.com/okian/matchloop/internal/domain/optimizer"
	. "github.com/smartystreets/goconvey/convey"
)

func run(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	t.Setenv(configEnv, "")

	Convey("Given the root command", t, func() {
		root := newRootCmd()

		Convey("Then every subcommand is registered", func() {
			names := map[string]bool{}
			for _, c := range root.Commands() {
				names[c.Name()] = true
			}
			for _, want := range []string{"serve", "learn", "score-performance", "optimize", "seed"} {
				So(names[want], ShouldBeTrue)
			}
		})

		Convey("Then --config is a persistent flag", func() {
			var seed *cobra.Command
			for _, c := range root.Commands() {
				if c.Name() == "seed" {
					seed = c
				}
			}
			So(seed, ShouldNotBeNil)
			So(seed.InheritedFlags().Lookup("config"), ShouldNotBeNil)
		})
	})
}

func TestJobCommands(t *testing.T) {
	t.Setenv(configEnv, "")
	t.Setenv("MATCHLOOP_STORE_DRIVER", "memory")
	t.Setenv("MATCHLOOP_CACHE_DRIVER", "memory")

	Convey("Given an empty in-memory engine", t, func() {
		Convey("When running learn", func() {
			out, err := run("learn")

			Convey("Then it reports insufficient data", func() {
				So(err, ShouldBeNil)
				var report learning.Report
				So(json.Unmarshal([]byte(out), &report), ShouldBeNil)
				So(report.Status, ShouldEqual, learning.StatusInsufficientData)
			})
		})

		Convey("When running optimize", func() {
			out, err := run("optimize")

			Convey("Then there are no candidates", func() {
				So(err, ShouldBeNil)
				var report optimizer.BatchReport
				So(json.Unmarshal([]byte(out), &report), ShouldBeNil)
				So(report.Candidates, ShouldEqual, 0)
			})
		})

		Convey("When seeding in process and learning", func() {
			out, err := run("seed",
				"--providers", "8", "--clients", "20", "--matches-per-client", "2",
				"--interactions-per-match", "2", "--workers", "2", "--learn")

			Convey("Then the load and the learning report are printed", func() {
				So(err, ShouldBeNil)
				var res seedResult
				So(json.Unmarshal([]byte(out), &res), ShouldBeNil)
				So(res.Load.Providers, ShouldEqual, 8)
				So(res.Load.Outcomes, ShouldEqual, 40)
				So(res.Load.Failed, ShouldEqual, 0)
				So(res.Learning, ShouldNotBeNil)
				So(res.Learning.Status, ShouldNotEqual, learning.StatusFailed)
			})
		})

		Convey("When the seed config is invalid", func() {
			_, err := run("seed", "--matches-per-client", "0")

			Convey("Then the command fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestConfigFlag(t *testing.T) {
	t.Setenv(configEnv, "")

	Convey("Given a config file", t, func() {
		dir := t.TempDir()

		Convey("When it does not exist", func() {
			_, err := run("--config", filepath.Join(dir, "missing.yaml"), "learn")

			Convey("Then loading fails", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When it sets a valid minimum sample", func() {
			path := filepath.Join(dir, "matchloop.yaml")
			So(os.WriteFile(path, []byte("learning_min_sample: 1\n"), 0o600), ShouldBeNil)

			out, err := run("--config", path, "learn")

			Convey("Then the command runs with it", func() {
				So(err, ShouldBeNil)
				var report learning.Report
				So(json.Unmarshal([]byte(out), &report), ShouldBeNil)
				So(report.Status, ShouldEqual, learning.StatusInsufficientData)
			})
		})
	})
}
