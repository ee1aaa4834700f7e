package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

	rootCmd := &cobra.Command{
		Use:   "tanksim",
		Short: "Tank level simulation and control tools",
		Long:  "tanksim runs single-tank liquid-level simulations, in real time or as offline batch experiments, and analyzes the results.",
	}

	rootCmd.AddCommand(newSimCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
