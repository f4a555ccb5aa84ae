package payments

import (
	"context"
	"sync"

	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
)

type fakeGateway struct {
	mu      sync.Mutex
	name    enums.PaymentMethod
	calls   int
	err     error
	create  *CreateResult
	result  *PaymentResult
	lastReq CreateRequest
	block   chan struct{}
}

func (f *fakeGateway) Name() enums.PaymentMethod {
	if f.name == "" {
		return enums.PaymentMethodStripe
	}
	return f.name
}

func (f *fakeGateway) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.create, nil
}

func (f *fakeGateway) Execute(ctx context.Context, req ExecuteRequest) (*PaymentResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeGateway) Status(ctx context.Context, paymentID string) (*PaymentResult, error) {
	return f.Execute(ctx, ExecuteRequest{PaymentID: paymentID})
}

func (f *fakeGateway) wait(ctx context.Context) error {
	if f.block == nil {
		return nil
	}
	select {
	case <-f.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
