package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"ragchat/internal/models"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.store.RefreshHistory(cmd.Context()); err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), s.store.History())
		},
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.store.LoadConversation(cmd.Context(), args[0]); err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), s.store.Messages())
			return nil
		},
	}
}

func newAskCommand() *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask a question, in a new conversation unless --chat is given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			if chatID != "" {
				if err := s.store.LoadConversation(ctx, chatID); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			err = s.store.SendMessage(ctx, strings.Join(args, " "), func(path string) {
				fmt.Fprintf(out, "conversation %s\n\n", path)
			})
			if err != nil {
				return err
			}

			msgs := s.store.Messages()
			if len(msgs) == 0 || msgs[len(msgs)-1].Sender != models.SenderAI {
				return errors.New("no reply received")
			}
			printMessages(out, msgs[len(msgs)-1:])
			return nil
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "continue the conversation with this id")
	return cmd
}

func newRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title...>",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			title := strings.Join(args[1:], " ")
			if strings.TrimSpace(title) == "" {
				return errors.New("title must not be blank")
			}
			return s.store.RenameConversation(cmd.Context(), args[0], title)
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			return s.store.DeleteConversation(cmd.Context(), args[0])
		},
	}
}

func printHistory(w io.Writer, history []models.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE")
	for _, h := range history {
		fmt.Fprintf(tw, "%s\t%s\n", h.ID, h.Name)
	}
	return tw.Flush()
}

func printMessages(w io.Writer, msgs []models.Message) {
	for _, m := range msgs {
		stamp := ""
		if !m.Time.IsZero() {
			stamp = " [" + m.Time.Local().Format("2006-01-02 15:04:05") + "]"
		}
		fmt.Fprintf(w, "%s%s\n%s\n", m.Sender, stamp, m.Text)
		for i, src := range m.Sources {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, src)
		}
		fmt.Fprintln(w)
	}
}
