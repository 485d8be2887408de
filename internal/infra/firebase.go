// README: Firebase Admin SDK initialisation for FCM notifications and the RTDB mirror.
package infra

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Firebase holds the clients built from one app. Database is nil when no
// databaseURL is configured.
type Firebase struct {
	Messaging *messaging.Client
	Database  *db.Client
}

// NewFirebase initialises the app. If credentialsFile is empty, application-default
// credentials / GOOGLE_APPLICATION_CREDENTIALS are used.
func NewFirebase(ctx context.Context, projectID, credentialsFile, databaseURL string) (*Firebase, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	conf := &firebase.Config{ProjectID: projectID, DatabaseURL: databaseURL}
	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}

	fb := &Firebase{}
	if fb.Messaging, err = app.Messaging(ctx); err != nil {
		return nil, fmt.Errorf("firebase app.Messaging: %w", err)
	}
	if databaseURL != "" {
		if fb.Database, err = app.Database(ctx); err != nil {
			return nil, fmt.Errorf("firebase app.Database: %w", err)
		}
	}
	return fb, nil
}
