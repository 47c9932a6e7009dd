package push

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"callsubs-backend/pkg/logger"
)

// messagingClient is the part of *messaging.Client the provider uses
type messagingClient interface {
	SendEach(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error)
}

// FirebaseProvider implements the Provider interface using Firebase Cloud Messaging.
// It supports Android, iOS (via the APNs bridge) and Web.
type FirebaseProvider struct {
	client    messagingClient
	projectID string
}

// NewFirebaseProvider initializes the Firebase Admin SDK from a service
// account file
func NewFirebaseProvider(ctx context.Context, projectID, credentialsPath string) (*FirebaseProvider, error) {
	if credentialsPath == "" {
		credentialsPath = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if credentialsPath == "" {
		return nil, fmt.Errorf("FIREBASE_CREDENTIALS_PATH is required for the firebase push provider")
	}

	credentials, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read firebase credentials: %w", err)
	}

	if projectID == "" {
		var creds struct {
			ProjectID string `json:"project_id"`
		}
		if err := json.Unmarshal(credentials, &creds); err != nil {
			return nil, fmt.Errorf("failed to parse firebase credentials: %w", err)
		}
		projectID = creds.ProjectID
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, option.WithCredentialsJSON(credentials))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get firebase messaging client: %w", err)
	}

	logger.Info("Firebase Admin SDK initialized", zap.String("project_id", projectID))

	return &FirebaseProvider{
		client:    client,
		projectID: projectID,
	}, nil
}

// Send sends a notification to multiple device tokens
func (f *FirebaseProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	if len(tokens) == 0 {
		return &SendResult{}, nil
	}

	messages := make([]*messaging.Message, len(tokens))
	for i, token := range tokens {
		messages[i] = buildMessage(notification, token)
	}

	response, err := f.client.SendEach(ctx, messages)
	if err != nil {
		return &SendResult{FailureCount: len(tokens)}, fmt.Errorf("failed to send firebase messages: %w", err)
	}

	result := &SendResult{}
	for i, resp := range response.Responses {
		if resp.Success {
			result.SuccessCount++
			continue
		}
		result.FailureCount++
		if resp.Error != nil && (messaging.IsUnregistered(resp.Error) || messaging.IsInvalidArgument(resp.Error)) {
			result.InvalidTokens = append(result.InvalidTokens, tokens[i])
		}
	}

	return result, nil
}

// buildMessage constructs a Firebase message from a notification
func buildMessage(notification *Notification, token string) *messaging.Message {
	data := make(map[string]string, len(notification.Data)+3)
	for k, v := range notification.Data {
		data[k] = v
	}
	data["title"] = notification.Title
	data["body"] = notification.Body
	data["timestamp"] = strconv.FormatInt(time.Now().Unix(), 10)

	androidConfig := &messaging.AndroidConfig{
		Priority: notification.Priority,
		Notification: &messaging.AndroidNotification{
			Title:       notification.Title,
			Body:        notification.Body,
			Sound:       notification.Sound,
			ClickAction: notification.ClickAction,
		},
		Data: data,
	}

	apnsConfig := &messaging.APNSConfig{
		Payload: &messaging.APNSPayload{
			Aps: &messaging.Aps{
				Alert: &messaging.ApsAlert{
					Title: notification.Title,
					Body:  notification.Body,
				},
				Sound:    notification.Sound,
				Category: notification.ClickAction,
			},
		},
	}

	webpushConfig := &messaging.WebpushConfig{
		Notification: &messaging.WebpushNotification{
			Title: notification.Title,
			Body:  notification.Body,
			Icon:  "/icon-192x192.png",
		},
		Data: data,
	}

	return &messaging.Message{
		Data:    data,
		Android: androidConfig,
		APNS:    apnsConfig,
		Webpush: webpushConfig,
		Token:   token,
	}
}
