package api

import (
	"context"
	"sync"

	"livetix/entities"
)

type EmailMock struct {
	lock sync.Mutex

	Sent []entities.Email
	Err  error
}

func (m *EmailMock) Send(ctx context.Context, email entities.Email) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.Err != nil {
		return m.Err
	}

	m.Sent = append(m.Sent, email)
	return nil
}

func (m *EmailMock) SentTo(to string) []entities.Email {
	m.lock.Lock()
	defer m.lock.Unlock()

	var sent []entities.Email
	for _, email := range m.Sent {
		if email.To == to {
			sent = append(sent, email)
		}
	}
	return sent
}
