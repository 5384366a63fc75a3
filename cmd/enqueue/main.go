// Command enqueue publishes creation messages to the per-kind Kafka topics.
// Without --payload it sends one sample message for each selected kind.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"retailapi/internal/config"
	"retailapi/internal/model"
	"retailapi/internal/queue"
)

type publisher interface {
	Publish(ctx context.Context, kind model.Kind, payload []byte) error
}

var samples = map[model.Kind]map[string]any{
	model.KindOrder:    {"OrderName": "Orders", "OrderType": "order", "OrderDescription": "its an order."},
	model.KindProduct:  {"ProductName": "Productss", "ProductDescription": "it is a product"},
	model.KindCustomer: {"CustomerName": "John M", "Surname": "Smith"},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(config.Load().Kafka).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(kcfg config.KafkaConfig) *cobra.Command {
	var (
		kinds   []string
		brokers []string
		payload string
	)
	cmd := &cobra.Command{
		Use:          "enqueue",
		Short:        "Publish entity creation messages to Kafka",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected, err := parseKinds(kinds)
			if err != nil {
				return err
			}
			if len(brokers) == 0 {
				return fmt.Errorf("no brokers: set --brokers or KAFKA_BROKERS")
			}
			if payload != "" && !json.Valid([]byte(payload)) {
				return fmt.Errorf("--payload is not valid JSON")
			}
			pub := queue.NewPublisher(brokers, queue.TopicsFromConfig(kcfg))
			defer pub.Close()
			return send(cmd.Context(), pub, cmd.OutOrStdout(), selected, payload)
		},
	}
	cmd.Flags().StringSliceVarP(&kinds, "kind", "k", []string{"order", "product", "customer"}, "kinds to publish")
	cmd.Flags().StringSliceVar(&brokers, "brokers", kcfg.Brokers, "Kafka bootstrap brokers")
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "raw JSON message; defaults to a sample per kind")
	return cmd
}

func parseKinds(names []string) ([]model.Kind, error) {
	out := make([]model.Kind, 0, len(names))
	for _, n := range names {
		k, err := model.ParseKind(n)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func send(ctx context.Context, pub publisher, w io.Writer, kinds []model.Kind, payload string) error {
	for _, k := range kinds {
		body := []byte(payload)
		if payload == "" {
			b, err := json.Marshal(samples[k])
			if err != nil {
				return fmt.Errorf("encode %s sample: %w", k, err)
			}
			body = b
		}
		if err := pub.Publish(ctx, k, body); err != nil {
			return err
		}
		fmt.Fprintf(w, "Message sent (%s): %s\n", k, strings.TrimSpace(string(body)))
	}
	return nil
}
