package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math/rand/v2"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dailypost/internal/core/domain"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

type memCache struct {
	data    []byte
	present bool
	saves   int
	deletes int
}

func (c *memCache) Load(ctx context.Context) ([]byte, error) {
	if !c.present {
		return nil, fmt.Errorf("mem cache: %w", os.ErrNotExist)
	}
	return c.data, nil
}

func (c *memCache) Save(ctx context.Context, data []byte) error {
	c.data = append([]byte(nil), data...)
	c.present = true
	c.saves++
	return nil
}

func (c *memCache) Delete(ctx context.Context) error {
	c.data = nil
	c.present = false
	c.deletes++
	return nil
}

type fakePublisher struct {
	validTokens map[string]bool
	nextToken   int
	loginErr    error
	probeErr    error
	publishErr  error

	loginCalls   int
	probeCalls   int
	publishCalls int
	captions     []string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{validTokens: map[string]bool{}}
}

func (p *fakePublisher) Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	p.loginCalls++
	if p.loginErr != nil {
		return nil, p.loginErr
	}
	p.nextToken++
	token := fmt.Sprintf("tok-%d", p.nextToken)
	p.validTokens[token] = true
	return &domain.Session{Username: creds.Username, Token: token, CreatedAt: time.Now()}, nil
}

func (p *fakePublisher) Probe(ctx context.Context, s *domain.Session) error {
	p.probeCalls++
	if p.probeErr != nil {
		return p.probeErr
	}
	if !p.validTokens[s.Token] {
		return fmt.Errorf("%w: probe 401", domain.ErrAuth)
	}
	return nil
}

func (p *fakePublisher) Publish(ctx context.Context, asset domain.PublishableAsset, caption string, s *domain.Session) (domain.Ack, error) {
	p.publishCalls++
	if p.publishErr != nil {
		return domain.Ack{}, p.publishErr
	}
	if !p.validTokens[s.Token] {
		return domain.Ack{}, fmt.Errorf("%w: upload 401", domain.ErrAuth)
	}
	p.captions = append(p.captions, caption)
	return domain.Ack{MediaID: fmt.Sprintf("media-%d", p.publishCalls), PublishedAt: time.Now()}, nil
}

type fakeGenerator struct {
	asset domain.RawAsset
	err   error
	panic any
	sleep time.Duration
	calls int
}

func (g *fakeGenerator) Acquire(ctx context.Context, prompt string, waitBudget time.Duration) (domain.RawAsset, error) {
	g.calls++
	if g.panic != nil {
		panic(g.panic)
	}
	if g.sleep > 0 {
		time.Sleep(g.sleep)
	}
	return g.asset, g.err
}

type fakeNormalizer struct {
	err   error
	panic any
	calls int
}

func (n *fakeNormalizer) Normalize(raw domain.RawAsset, c domain.Constraints) (domain.PublishableAsset, error) {
	n.calls++
	if n.panic != nil {
		panic(n.panic)
	}
	if n.err != nil {
		return domain.PublishableAsset{}, n.err
	}
	return domain.PublishableAsset{Data: raw.Data, MIMEType: c.MIMEType, Width: c.TargetSide, Height: c.TargetSide}, nil
}

func pngAsset(t *testing.T, w, h int) domain.RawAsset {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return domain.RawAsset{Data: buf.Bytes(), MIMEType: "image/png", Width: w, Height: h}
}
