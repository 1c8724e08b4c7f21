// Package cmd holds the command line entrypoints.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "zapagent",
	Short: "zapagent - motor de atendimento com IA por conexão",
	Long: `zapagent orquestra atendimentos de mensageria com IA.

Cada conexão tem seu agente ativo, histórico, comandos e regras por tipo
de mensagem. Execute "zapagent serve" para iniciar o motor.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
