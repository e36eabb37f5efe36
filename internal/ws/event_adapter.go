package ws

import (
	"fmt"
	"runtime/debug"

	"github.com/ignatzorin/escrow-backend/internal/service"
)

// EventAdapter доставляет события переходов обеим сторонам сделки через
// хаб. Реализует service.EventEmitter; сбой доставки никогда не влияет
// на сам переход.
type EventAdapter struct {
	hub *Hub
}

// NewEventAdapter создаёт адаптер поверх хаба.
func NewEventAdapter(hub *Hub) *EventAdapter {
	return &EventAdapter{hub: hub}
}

// Emit рассылает событие покупателю и продавцу.
func (a *EventAdapter) Emit(event service.Event) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Printf("WebSocket event emit panic recovered: %v\nStack trace:\n%s\n", r, debug.Stack())
			}
		}()
		_ = a.hub.BroadcastToUser(event.BuyerID, event.Name, event)
		if event.SellerID != event.BuyerID {
			_ = a.hub.BroadcastToUser(event.SellerID, event.Name, event)
		}
	}()
}
