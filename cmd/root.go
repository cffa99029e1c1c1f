package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/samsaffron/gemchat/internal/exitcode"
	pprofserver "github.com/samsaffron/gemchat/internal/pprof"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/gemchat/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "Override provider, optionally with model (e.g., anthropic:claude-sonnet-4-5)")
	rootCmd.PersistentFlags().StringVar(&cpuProfile, "cpuprofile", "", "Write CPU profile to file")
	rootCmd.PersistentFlags().StringVar(&memProfile, "memprofile", "", "Write memory profile to file")
	rootCmd.PersistentFlags().IntVar(&pprofPort, "pprof", -1, "Serve net/http/pprof on 127.0.0.1 (0 picks a port)")
	rootCmd.PersistentFlags().Lookup("pprof").NoOptDefVal = "0"
	if err := rootCmd.RegisterFlagCompletionFunc("provider", ProviderFlagCompletion); err != nil {
		panic(fmt.Sprintf("failed to register provider completion: %v", err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "gemchat",
	Short: "Chat with Gemini and other LLMs from the terminal or the browser",
	Long: `gemchat streams replies from a hosted language model into a chat log.

Examples:
  gemchat chat                               # interactive terminal chat
  gemchat serve --addr :8080                 # browser chat over WebSocket
  gemchat ask "What is a goroutine?"         # one answer to stdout
  gemchat chat --provider anthropic          # switch provider
  gemchat chat --remote localhost:8080       # attach the terminal to a running serve

  gemchat config init                        # choose provider and key
  gemchat config show                        # view configuration`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(os.Stderr, debug)
		return startProfiling()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return stopProfiling()
	},
}

var (
	configPath     string
	debug          bool
	providerFlag   string
	cpuProfile     string
	memProfile     string
	pprofPort      int
	cpuProfileFile *os.File
	pprofSrv       *pprofserver.Server
)

// setupLogging installs the default slog logger.
func setupLogging(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func startProfiling() error {
	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			return err
		}
		cpuProfileFile = f
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return err
		}
	}
	if pprofPort >= 0 {
		pprofSrv = pprofserver.NewServer()
		if _, err := pprofSrv.Start(pprofPort); err != nil {
			return err
		}
	}
	return nil
}

func stopProfiling() error {
	if pprofSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pprofSrv.Stop(ctx)
	}
	if cpuProfileFile != nil {
		pprof.StopCPUProfile()
		cpuProfileFile.Close()
	}
	if memProfile != "" {
		f, err := os.Create(memProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			return err
		}
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr exitcode.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(exitcode.Error)
	}
}
