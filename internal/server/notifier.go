package server

import (
	"context"
	"time"

	"github.com/ktasci/quizserve/internal/iap"
	"github.com/ktasci/quizserve/internal/idgen"
	"github.com/ktasci/quizserve/internal/purchases"
	"github.com/ktasci/quizserve/internal/realtime"
	"github.com/ktasci/quizserve/internal/webhooks"
)

// eventNotifier fans purchase events out to webhook subscribers and
// websocket clients. It implements purchases.Notifier.
type eventNotifier struct {
	hub        *realtime.Hub
	dispatcher *webhooks.Dispatcher
}

func (n *eventNotifier) PurchaseRecorded(ctx context.Context, p *purchases.Purchase) {
	data := map[string]interface{}{
		"purchaseId":    p.ID,
		"platform":      string(p.Platform),
		"productSku":    p.ProductSKU,
		"transactionId": p.TransactionID,
		"purchaseTime":  p.PurchaseTime,
	}

	if n.hub != nil {
		n.hub.BroadcastPurchase(data)
	}

	if n.dispatcher != nil {
		_ = n.dispatcher.Dispatch(ctx, &webhooks.Event{
			ID:        idgen.Event(),
			Type:      webhooks.EventPurchaseRecorded,
			Timestamp: time.Now(),
			Data:      data,
		})
	}
}

func (n *eventNotifier) DuplicateRejected(ctx context.Context, platform iap.Platform, transactionKey string) {
	data := map[string]interface{}{
		"platform":       string(platform),
		"transactionKey": transactionKey,
	}

	if n.hub != nil {
		n.hub.Broadcast(&realtime.Event{
			Type:      realtime.EventDuplicateRejected,
			Timestamp: time.Now(),
			Data:      data,
		})
	}

	if n.dispatcher != nil {
		_ = n.dispatcher.Dispatch(ctx, &webhooks.Event{
			ID:        idgen.Event(),
			Type:      webhooks.EventPurchaseDuplicate,
			Timestamp: time.Now(),
			Data:      data,
		})
	}
}
