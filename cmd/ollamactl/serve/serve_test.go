package servecmder

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/papercomputeco/ollama-go/cmd/ollamactl/cliconfig"
	"github.com/papercomputeco/ollama-go/pkg/config"
)

var _ = Describe("Serve Command", func() {
	var (
		tmpDir string
		flags  *cliconfig.Flags
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "ollamactl-serve-test-*")
		Expect(err).NotTo(HaveOccurred())
		configPath := filepath.Join(tmpDir, "config.toml")
		Expect(os.WriteFile(configPath, nil, 0o644)).To(Succeed())
		flags = &cliconfig.Flags{ConfigPath: configPath, Host: "http://127.0.0.1:1"}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	freeAddr := func() string {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr := ln.Addr().String()
		Expect(ln.Close()).To(Succeed())
		return addr
	}

	It("serves until the context is canceled", func() {
		addr := freeAddr()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cmd := NewServeCmd(flags)
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"--listen", addr, "--sqlite", filepath.Join(tmpDir, "proxy.db")})

		done := make(chan error, 1)
		go func() {
			done <- cmd.ExecuteContext(ctx)
		}()

		Eventually(func() (int, error) {
			resp, err := http.Get("http://" + addr + "/health")
			if err != nil {
				return 0, err
			}
			defer resp.Body.Close()
			return resp.StatusCode, nil
		}).WithTimeout(5 * time.Second).Should(Equal(http.StatusOK))

		cancel()
		Eventually(done).WithTimeout(5 * time.Second).Should(Receive(BeNil()))
		Expect(filepath.Join(tmpDir, "proxy.db")).To(BeAnExistingFile())
	})

	It("fails when the address is taken", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		cmd := NewServeCmd(flags)
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"--listen", ln.Addr().String()})
		Expect(cmd.ExecuteContext(context.Background())).To(MatchError(ContainSubstring("could not listen on")))
	})

	Describe("reloading the config", func() {
		var c *serveCommander

		parse := func(data string) *config.Config {
			cfg, err := config.Parse(data)
			Expect(err).NotTo(HaveOccurred())
			return cfg
		}

		BeforeEach(func() {
			c = &serveCommander{flags: flags}
		})

		It("switches the log level without a restart", func() {
			start := parse("")
			Expect(flags.Apply(start)).To(Succeed())

			level := zap.NewAtomicLevelAt(zap.InfoLevel)
			core, logs := observer.New(zap.InfoLevel)

			c.applyConfig(parse("debug = true"), c.proxyConfig(start), level, zap.New(core))
			Expect(level.Level()).To(Equal(zap.DebugLevel))
			Expect(logs.FilterMessage("config reloaded").Len()).To(Equal(1))
			Expect(logs.FilterLevelExact(zap.WarnLevel).Len()).To(BeZero())

			c.applyConfig(parse("debug = false"), c.proxyConfig(start), level, zap.New(core))
			Expect(level.Level()).To(Equal(zap.InfoLevel))
		})

		It("keeps the --debug flag over the file", func() {
			flags.Debug = true
			start := parse("")
			Expect(flags.Apply(start)).To(Succeed())

			level := zap.NewAtomicLevelAt(zap.DebugLevel)
			c.applyConfig(parse("debug = false"), c.proxyConfig(start), level, zap.NewNop())
			Expect(level.Level()).To(Equal(zap.DebugLevel))
		})

		It("warns about proxy settings that need a restart", func() {
			start := parse("")
			Expect(flags.Apply(start)).To(Succeed())

			level := zap.NewAtomicLevelAt(zap.InfoLevel)
			core, logs := observer.New(zap.InfoLevel)

			c.applyConfig(parse("[proxy]\nlisten = \"127.0.0.1:9999\""), c.proxyConfig(start), level, zap.New(core))
			warnings := logs.FilterLevelExact(zap.WarnLevel).All()
			Expect(warnings).To(HaveLen(1))
			Expect(warnings[0].ContextMap()).To(HaveKeyWithValue("listen", "127.0.0.1:9999"))
		})

		It("ignores settings overridden by flags", func() {
			c.listen = "127.0.0.1:7000"
			start := parse("")
			Expect(flags.Apply(start)).To(Succeed())

			core, logs := observer.New(zap.InfoLevel)
			c.applyConfig(parse("[proxy]\nlisten = \"127.0.0.1:9999\""), c.proxyConfig(start), zap.NewAtomicLevel(), zap.New(core))
			Expect(logs.FilterLevelExact(zap.WarnLevel).Len()).To(BeZero())
		})
	})
})
