// The amaranth-sim command runs built-in demonstration designs on the
// simulation engine. Defaults can be placed in a .env file.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use: "amaranth-sim",
	Short: "amaranth-sim runs demonstration designs on the discrete-event " +
		"logic simulation engine.",
	Long: `amaranth-sim runs demonstration designs on the discrete-event ` +
		`logic simulation engine. Each subcommand elaborates a small design, ` +
		`simulates it, and can dump waveforms or record value changes to a ` +
		`database.`,
}

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
