package verify

import (
	"context"
	"errors"
	"testing"
	"time"
)

type captureSender struct {
	email, code string
	err         error
}

func (c *captureSender) SendCode(_ context.Context, email, code string) error {
	if c.err != nil {
		return c.err
	}
	c.email = email
	c.code = code
	return nil
}

func TestIssueAndRedeem(t *testing.T) {
	sender := &captureSender{}
	v := New(sender, nil)

	if err := v.Issue(context.Background(), "ada@example.com"); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(sender.code) != 6 {
		t.Fatalf("code length: got %d, want 6", len(sender.code))
	}

	if err := v.Redeem("ada@example.com", sender.code); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	// Single use.
	if err := v.Redeem("ada@example.com", sender.code); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("second redeem: got %v, want ErrInvalidCode", err)
	}
}

func TestRedeemWrongCode(t *testing.T) {
	sender := &captureSender{}
	v := New(sender, nil)

	if err := v.Issue(context.Background(), "ada@example.com"); err != nil {
		t.Fatal(err)
	}
	if err := v.Redeem("ada@example.com", "000000x"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("got %v, want ErrInvalidCode", err)
	}
}

func TestRedeemExpiredCode(t *testing.T) {
	sender := &captureSender{}
	v := New(sender, nil)

	now := time.Now()
	v.now = func() time.Time { return now }
	if err := v.Issue(context.Background(), "ada@example.com"); err != nil {
		t.Fatal(err)
	}

	v.now = func() time.Time { return now.Add(6 * time.Minute) }
	if err := v.Redeem("ada@example.com", sender.code); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("got %v, want ErrInvalidCode", err)
	}
}

func TestIssueFailedSendDoesNotArmCode(t *testing.T) {
	sender := &captureSender{err: errors.New("relay down")}
	v := New(sender, nil)

	if err := v.Issue(context.Background(), "ada@example.com"); err == nil {
		t.Fatal("want error from failed send")
	}
	if err := v.Redeem("ada@example.com", "123456"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("got %v, want ErrInvalidCode", err)
	}
}

func TestReissueInvalidatesOldCode(t *testing.T) {
	sender := &captureSender{}
	v := New(sender, nil)
	ctx := context.Background()

	if err := v.Issue(ctx, "ada@example.com"); err != nil {
		t.Fatal(err)
	}
	first := sender.code
	if err := v.Issue(ctx, "ada@example.com"); err != nil {
		t.Fatal(err)
	}
	second := sender.code

	if first != second {
		if err := v.Redeem("ada@example.com", first); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("old code still redeems: %v", err)
		}
	}
	if err := v.Redeem("ada@example.com", second); err != nil {
		t.Errorf("new code: %v", err)
	}
}
