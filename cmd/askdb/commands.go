package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/koustreak/askdb/internal/errs"
	"github.com/spf13/cobra"
)

var askShowQuery bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close()

		turn := a.chat.HandleTurn(cmd.Context(), strings.Join(args, " "))
		out := newRenderer(os.Stdout)
		if (askShowQuery || turn.Kind == errs.ErrKindCompositionFailed) && turn.Query != "" {
			out.query(turn.Query, turn.Result)
			fmt.Fprintln(os.Stdout)
		}
		if !turn.OK() {
			return errors.New(turn.Error)
		}
		out.answer(turn.Answer)
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the backend serves",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Database.Location = ""
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close()

		models, err := a.llm.ListModels(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range models {
			mark := " "
			if m == cfg.LLM.Model {
				mark = "*"
			}
			fmt.Printf("%s %s\n", mark, m)
		}
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the schema text the model sees for --db",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Location == "" {
			return errs.New(errs.ErrKindInvalidInput, "no database location: pass --db or set ASKDB_DB")
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close()

		text, err := a.sessions.Describe(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&askShowQuery, "show-query", false, "print the validated query and its result before the answer")
}
