// Package notify implements a command that sends a test alarm through the
// configured alarm sinks.
package notify

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tphakala/qcline/internal/classifier"
	"github.com/tphakala/qcline/internal/conf"
	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/events"
	"github.com/tphakala/qcline/internal/line"
	"github.com/tphakala/qcline/internal/mqtt"
	"github.com/tphakala/qcline/internal/notification"
)

// Command returns a cobra command that sends a test alarm via push
// notification and, optionally, MQTT.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		lane     string
		kind     string
		severity string
		message  string
		urls     []string
		viaMQTT  bool
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test alarm to the notification services",
		Long: `Send a test alarm through the configured shoutrrr services.

Examples:
  # Use the URLs from the config file
  qcline notify --lane L1 --kind SOFT_FAIL

  # Override the target service
  qcline notify --url "ntfy://ntfy.sh/qcline-test" --severity critical

  # Also publish the alarm to the MQTT broker
  qcline notify --mqtt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := testAlarm(settings, lane, kind, severity, message)
			if err != nil {
				return err
			}

			if len(urls) == 0 {
				urls = settings.Notification.URLs
			}
			sender, err := notification.NewShoutrrrSender(urls, settings.Notification.Timeout)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			title, body := notification.Render(event)
			if err := sender.Send(ctx, title, body); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "notification sent: id=%s lane=%s severity=%s\n",
				event.ID, event.Lane, event.Severity)

			if viaMQTT {
				cfg := mqtt.ConfigFromSettings(settings)
				client := mqtt.NewClient(cfg, nil)
				if err := client.Connect(ctx); err != nil {
					return err
				}
				defer client.Disconnect()

				publisher := mqtt.NewPublisher(client, cfg.Topic)
				if err := publisher.ProcessAlarm(event); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "alarm published to %s\n", publisher.Topic(event.Lane))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&lane, "lane", "L1", "Lane the alarm is raised on")
	cmd.Flags().StringVar(&kind, "kind", string(classifier.VerdictSoftFail), "Alarm verdict: SOFT_FAIL|OVER_HEIGHT|UNDER_HEIGHT|SIZE_MISMATCH")
	cmd.Flags().StringVar(&severity, "severity", "", "Alarm severity: low|medium|high|critical (default: derived from the verdict)")
	cmd.Flags().StringVar(&message, "message", "This is a test alarm", "Alarm message")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "Shoutrrr service URL, repeatable (default: notification.urls)")
	cmd.Flags().BoolVar(&viaMQTT, "mqtt", false, "Also publish the alarm to the MQTT broker")

	return cmd
}

// testAlarm builds the event sent by the command.
func testAlarm(settings *conf.Settings, lane, kind, severity, message string) (events.AlarmEvent, error) {
	verdict := classifier.Verdict(kind)
	if !slices.Contains(classifier.Verdicts, verdict) || verdict == classifier.VerdictOK {
		return events.AlarmEvent{}, errors.Newf("invalid alarm kind: %s", kind).
			Component("notify").
			Category(errors.CategoryValidation).
			Build()
	}

	bin := verdict.Bin()
	sev := line.Severity(severity)
	if severity == "" {
		sev = line.SeverityForBin(bin)
	}
	if sev.Rank() == 0 {
		return events.AlarmEvent{}, errors.Newf("invalid severity: %s", severity).
			Component("notify").
			Category(errors.CategoryValidation).
			Build()
	}

	profileName := ""
	for _, l := range settings.Lanes {
		if l.ID == lane {
			profileName = l.Profile
			break
		}
	}

	return events.AlarmEvent{
		Alarm: line.Alarm{
			ID:        uuid.New().String(),
			Timestamp: time.Now(),
			Lane:      lane,
			Profile:   profileName,
			Kind:      verdict,
			Bin:       bin,
			Message:   message,
			Severity:  sev,
		},
		Source: settings.Main.Name,
	}, nil
}
