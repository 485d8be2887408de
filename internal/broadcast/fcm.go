// README: FCM sink pushing cleared-signal notices to the traffic topic.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"firebase.google.com/go/v4/messaging"

	"greencorridor/internal/modules/corridor"
)

const DefaultTrafficTopic = "traffic"

// Sender is satisfied by *messaging.Client.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMNotifier struct {
	client Sender
	topic  string
}

func NewFCMNotifier(client Sender, topic string) *FCMNotifier {
	if topic == "" {
		topic = DefaultTrafficTopic
	}
	return &FCMNotifier{client: client, topic: topic}
}

// Publish sends one topic message per newly cleared signal. Snapshots without
// cleared signals are ignored.
func (n *FCMNotifier) Publish(ctx context.Context, snap corridor.Snapshot) error {
	var errs []error
	for _, ev := range clearedEvents(snap) {
		msg := &messaging.Message{
			Topic: n.topic,
			Data: map[string]string{
				"type":        "signal_cleared",
				"signal_id":   string(ev.SignalID),
				"corridor_id": string(ev.CorridorID),
				"state":       string(ev.State),
				"lat":         strconv.FormatFloat(ev.Position.Lat, 'f', 6, 64),
				"lng":         strconv.FormatFloat(ev.Position.Lng, 'f', 6, 64),
			},
			Notification: &messaging.Notification{
				Title: "Signal cleared",
				Body:  fmt.Sprintf("%s held green for corridor %s", signalLabel(ev), ev.CorridorID),
			},
			Android: &messaging.AndroidConfig{
				Priority: "high",
			},
		}
		id, err := n.client.Send(ctx, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("sending FCM for signal %s: %w", ev.SignalID, err))
			continue
		}
		log.Printf("[fcm] signal %s cleared for %s, message_id=%s", ev.SignalID, ev.CorridorID, id)
	}
	return errors.Join(errs...)
}

func signalLabel(ev SignalCleared) string {
	if ev.Name != "" {
		return ev.Name
	}
	return string(ev.SignalID)
}
