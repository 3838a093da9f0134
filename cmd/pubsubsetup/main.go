package main

import (
	"context"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// defaultLayout creates the message events topic with the worker subscription, and the public
// notifications topic with the subscription read by the component tests.
const defaultLayout = "recyclo,chat.MessageEvents:worker.chat.MessageEvents.sub,shared.recyclo.Notifications:test.shared.recyclo.Notifications.sub"

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
}

func main() {
	// The layout follows the pattern: PROJECTID,TOPIC1:SUBSCRIPTION11:SUBSCRIPTION12,TOPIC2:SUBSCRIPTION21
	arrayStr := defaultLayout
	if len(os.Args) >= 2 {
		arrayStr = os.Args[1]
	}

	// Split the comma-separated array into individual items
	items := strings.Split(arrayStr, ",")
	projectID := strings.ReplaceAll(items[0], " ", "")
	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		log.WithError(err).WithField("project", projectID).Fatal("unable to create client")
	}
	defer client.Close()
	items = items[1:]

	// Process each item
	for _, item := range items {
		// Split the item into topic and subscriptions
		parts := strings.Split(item, ":")
		topicID := strings.ReplaceAll(parts[0], " ", "")
		topic, err := client.CreateTopic(ctx, topicID)
		if status.Code(err) == codes.AlreadyExists {
			topic = client.Topic(topicID)
		} else if err != nil {
			log.WithError(err).WithField("project", projectID).WithField("topic", topicID).Fatal("unable to create topic")
		}

		for _, s := range parts[1:] {
			subscriptionID := strings.ReplaceAll(s, " ", "")
			_, err = client.CreateSubscription(ctx, subscriptionID, pubsub.SubscriptionConfig{Topic: topic})
			if err != nil && status.Code(err) != codes.AlreadyExists {
				log.WithError(err).WithField("topic", topicID).WithField("subscription", subscriptionID).Fatal("unable to create subscription")
			}
			log.WithField("project", projectID).WithField("topic", topicID).WithField("subscription", subscriptionID).Info("subscription ready")
		}
		log.WithField("project", projectID).WithField("topic", topicID).Info("topic ready")
	}
}
