package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/campaign-hub/backend/internal/config"
	"github.com/campaign-hub/backend/internal/db"
	"github.com/campaign-hub/backend/internal/events"
	"go.uber.org/zap"
)

// Alert bridge: forwards terminal dispatch failures from Redis to an SNS
// topic watched by operations.

type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.OpsAlertTopicARN == "" {
		log.Fatal("OPS_ALERT_TOPIC_ARN is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal("failed to load aws config", zap.Error(err))
	}
	client := sns.NewFromConfig(awsCfg)

	subscriber := events.NewRedisSubscriber(rdb, log)
	err = subscriber.Subscribe(ctx, events.StreamDispatch, func(event events.Event) {
		forwardAlert(ctx, client, cfg.OpsAlertTopicARN, event, log)
	})
	if err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("alert-bridge started", zap.String("topic", cfg.OpsAlertTopicARN))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down alert-bridge")
	cancel()
}

func forwardAlert(ctx context.Context, client snsPublisher, topicARN string, event events.Event, log *zap.Logger) {
	subject, message, ok := alertFor(event)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		log.Warn("failed to publish alert", zap.String("post_id", payloadString(event, "post_id")), zap.Error(err))
		return
	}
	log.Info("alert published",
		zap.String("post_id", payloadString(event, "post_id")),
		zap.String("message_id", aws.ToString(out.MessageId)),
	)
}
