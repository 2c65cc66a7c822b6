package events

import "context"

// FakePublisher is a fake implementation of Publisher for testing.
type FakePublisher struct {
	PublishActivityVerifiedFn      func(ctx context.Context, ev ActivityVerified) error
	PublishCredentialInvalidatedFn func(ctx context.Context, ev CredentialInvalidated) error

	Verified    []ActivityVerified
	Invalidated []CredentialInvalidated
}

var _ Publisher = (*FakePublisher)(nil)

func (f *FakePublisher) PublishActivityVerified(ctx context.Context, ev ActivityVerified) error {
	f.Verified = append(f.Verified, ev)
	if f.PublishActivityVerifiedFn != nil {
		return f.PublishActivityVerifiedFn(ctx, ev)
	}
	return nil
}

func (f *FakePublisher) PublishCredentialInvalidated(ctx context.Context, ev CredentialInvalidated) error {
	f.Invalidated = append(f.Invalidated, ev)
	if f.PublishCredentialInvalidatedFn != nil {
		return f.PublishCredentialInvalidatedFn(ctx, ev)
	}
	return nil
}
