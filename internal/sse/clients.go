// Package sse provides Server-Sent Events client management for real-time editor notifications.
package sse

import (
	"sync"

	"github.com/inkwell-app/inkwell/internal/model"
)

// Event names broadcast to editor clients.
const (
	EventSaved      = "saved"
	EventCheckpoint = "checkpoint"
	EventReload     = "reload"
)

type Client struct {
	Msg       chan string
	ChapterID model.ChapterID
}

type Clients struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

func NewClients() *Clients {
	return &Clients{
		clients: make(map[*Client]bool),
	}
}

func (s *Clients) Add(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *Clients) Delete(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, client)
	close(client.Msg)
}

func (s *Clients) Broadcast(chapterID model.ChapterID, msg string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		if client.ChapterID == chapterID {
			select {
			case client.Msg <- msg:
			default:
			}
		}
	}
}
