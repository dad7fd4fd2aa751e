package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"daily-calendar/internal/extraction"
	"daily-calendar/internal/service"
)

var (
	flagUser        string
	flagOutput      string
	flagConfirm     bool
	flagEmail       string
	flagPassword    string
	flagFullName    string
	flagSummaryTime string
	flagTelegramID  int64
)

var importCmd = &cobra.Command{
	Use:   "import <file.ics>",
	Short: "Import the events of an iCalendar file for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		return withUser(cmd, func(a *app, userID uint) error {
			events, err := a.calendar.ImportICS(cmd.Context(), userID, body)
			if err != nil {
				return err
			}
			for _, event := range events {
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s %s\n", event.ID, event.StartTime.In(a.cfg.Location).Format("2006-01-02 15:04"), event.Title)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d event(s)\n", len(events))
			return nil
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <event-id>",
	Short: "Export one event as an iCalendar document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eventID, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid event id %q", args[0])
		}
		return withUser(cmd, func(a *app, userID uint) error {
			body, err := a.calendar.ExportICS(cmd.Context(), userID, uint(eventID))
			if err != nil {
				return err
			}
			if flagOutput == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), body)
				return err
			}
			return os.WriteFile(flagOutput, []byte(body), 0o644)
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print today's summary for a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		user, err := a.user(cmd.Context(), flagUser)
		if err != nil {
			return err
		}
		text, err := a.summaries.DailySummary(cmd.Context(), user, a.clock.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send one message to the assistant and optionally save what it extracts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		user, err := a.user(cmd.Context(), flagUser)
		if err != nil {
			return err
		}

		reply, err := a.chat.Send(cmd.Context(), user.ID, strings.Join(args, " "))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, reply.Reply)
		for i, intent := range reply.Intents {
			fmt.Fprintf(out, "%d. %s %s\n", i+1, intent.Kind, describe(intent))
		}
		if !flagConfirm {
			return nil
		}
		for _, intent := range reply.Intents {
			saved, err := a.materializer.Materialize(cmd.Context(), intent, user)
			if err != nil {
				return err
			}
			switch {
			case saved.Event != nil:
				fmt.Fprintf(out, "saved event #%d %s\n", saved.Event.ID, saved.Event.Title)
			case saved.Todo != nil:
				fmt.Fprintf(out, "saved todo #%d %s\n", saved.Todo.ID, saved.Todo.Title)
			}
		}
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		input := service.UserInput{
			Username:    args[0],
			Email:       flagEmail,
			Password:    flagPassword,
			FullName:    flagFullName,
			SummaryTime: flagSummaryTime,
		}
		if flagTelegramID != 0 {
			input.TelegramID = &flagTelegramID
		}
		user, err := a.userSvc.Create(cmd.Context(), input)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user #%d %s (summary at %s)\n", user.ID, user.Username, user.SummaryTime)
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete a user with all of their events, todo items and tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		user, err := a.userSvc.GetByUsername(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := a.userSvc.Delete(cmd.Context(), user.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted user %s\n", user.Username)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{importCmd, exportCmd, summaryCmd, chatCmd} {
		cmd.Flags().StringVarP(&flagUser, "user", "u", "", "username the command acts for")
	}
	exportCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write the document to this file instead of stdout")
	chatCmd.Flags().BoolVar(&flagConfirm, "confirm", false, "save every extracted item")

	userAddCmd.Flags().StringVar(&flagEmail, "email", "", "email address")
	userAddCmd.Flags().StringVar(&flagPassword, "password", "", "password, stored as a bcrypt hash")
	userAddCmd.Flags().StringVar(&flagFullName, "full-name", "", "display name")
	userAddCmd.Flags().StringVar(&flagSummaryTime, "summary-time", "", "daily summary time as HH:MM (default 07:00)")
	userAddCmd.Flags().Int64Var(&flagTelegramID, "telegram-id", 0, "link a Telegram account")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userDeleteCmd)
}

func withUser(cmd *cobra.Command, fn func(a *app, userID uint) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	user, err := a.user(cmd.Context(), flagUser)
	if err != nil {
		return err
	}
	return fn(a, user.ID)
}

func describe(intent extraction.Intent) string {
	keys := []string{"title", "start_time", "end_time", "location", "deadline", "priority"}
	var parts []string
	for _, key := range keys {
		if v := intent.String(key); v != "" {
			parts = append(parts, key+"="+strconv.Quote(v))
		}
	}
	return strings.Join(parts, " ")
}
