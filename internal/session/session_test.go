package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nelcapetown/audible-scraper/internal/browser"
)

const (
	listing = "https://www.audible.com/library/titles"
	rowSel  = "div.adbl-library-content-row"
)

type fakePage struct {
	url     string
	waits   []error
	waited  []time.Duration
	gotoErr error
	closed  bool
}

func (p *fakePage) Goto(url string, _ time.Duration) error {
	if p.gotoErr != nil {
		return p.gotoErr
	}
	p.url = url
	return nil
}

func (p *fakePage) WaitForSelector(_ string, timeout time.Duration) error {
	p.waited = append(p.waited, timeout)
	if len(p.waits) == 0 {
		return nil
	}
	err := p.waits[0]
	p.waits = p.waits[1:]
	return err
}

func (p *fakePage) URL() string              { return p.url }
func (p *fakePage) Content() (string, error) { return "", nil }
func (p *fakePage) Close() error             { p.closed = true; return nil }

type fakeDriver struct {
	page    *fakePage
	saved   []string
	saveErr error
	closed  bool
}

func (d *fakeDriver) NewPage() (browser.Page, error) { return d.page, nil }

func (d *fakeDriver) SaveStorageState(path string) error {
	if d.saveErr != nil {
		return d.saveErr
	}
	d.saved = append(d.saved, path)
	return os.WriteFile(path, []byte(`{"cookies":[]}`), 0o644)
}

func (d *fakeDriver) Close() error { d.closed = true; return nil }

type launcher struct {
	calls  []string
	driver *fakeDriver
	failOn map[string]error
}

func (l *launcher) launch(state string) (Driver, error) {
	l.calls = append(l.calls, state)
	if err := l.failOn[state]; err != nil {
		return nil, err
	}
	return l.driver, nil
}

func newLauncher(page *fakePage) *launcher {
	return &launcher{driver: &fakeDriver{page: page}, failOn: map[string]error{}}
}

func timeoutErr() error {
	return fmt.Errorf("wait: %w", browser.ErrTimeout)
}

func countingOperator(answers ...bool) (Operator, *int) {
	calls := 0
	return OperatorFunc(func(_ context.Context, _ string) (bool, error) {
		calls++
		if calls > len(answers) {
			return false, nil
		}
		return answers[calls-1], nil
	}), &calls
}

func TestAcquireUsesStoredToken(t *testing.T) {
	token := filepath.Join(t.TempDir(), "auth.json")
	require.NoError(t, os.WriteFile(token, []byte(`{"cookies":[]}`), 0o644))
	l := newLauncher(&fakePage{})

	sess, err := NewManager(l.launch, nil, Options{RowSelector: rowSel}, nil).Acquire(context.Background(), token)
	require.NoError(t, err)

	assert.True(t, sess.FromToken)
	assert.Equal(t, []string{token}, l.calls)
}

func TestAcquireWithoutToken(t *testing.T) {
	token := filepath.Join(t.TempDir(), "missing.json")
	l := newLauncher(&fakePage{})

	sess, err := NewManager(l.launch, nil, Options{RowSelector: rowSel}, nil).Acquire(context.Background(), token)
	require.NoError(t, err)

	assert.False(t, sess.FromToken)
	assert.Equal(t, []string{""}, l.calls)
}

func TestAcquireFallsBackOnCorruptToken(t *testing.T) {
	token := filepath.Join(t.TempDir(), "auth.json")
	require.NoError(t, os.WriteFile(token, []byte(`{not json`), 0o644))
	l := newLauncher(&fakePage{})

	sess, err := NewManager(l.launch, nil, Options{RowSelector: rowSel}, nil).Acquire(context.Background(), token)
	require.NoError(t, err)

	assert.False(t, sess.FromToken)
	assert.Equal(t, []string{""}, l.calls)
}

func TestAcquireFallsBackWhenTokenRejected(t *testing.T) {
	token := filepath.Join(t.TempDir(), "auth.json")
	require.NoError(t, os.WriteFile(token, []byte(`{"cookies":"wrong shape"}`), 0o644))
	l := newLauncher(&fakePage{})
	l.failOn[token] = errors.New("storage state invalid")

	sess, err := NewManager(l.launch, nil, Options{RowSelector: rowSel}, nil).Acquire(context.Background(), token)
	require.NoError(t, err)

	assert.False(t, sess.FromToken)
	assert.Equal(t, []string{token, ""}, l.calls)
}

func TestAcquireFreshLaunchFailure(t *testing.T) {
	l := newLauncher(&fakePage{})
	l.failOn[""] = errors.New("chromium not installed")

	_, err := NewManager(l.launch, nil, Options{RowSelector: rowSel}, nil).Acquire(context.Background(), "")
	assert.ErrorContains(t, err, "chromium not installed")
}

func TestEnsureAuthenticatedFirstTry(t *testing.T) {
	token := filepath.Join(t.TempDir(), "auth.json")
	page := &fakePage{}
	l := newLauncher(page)
	op, calls := countingOperator()
	m := NewManager(l.launch, op, Options{RowSelector: rowSel}, nil)

	sess, err := m.Acquire(context.Background(), token)
	require.NoError(t, err)

	got, err := m.EnsureAuthenticated(context.Background(), sess, listing, time.Second)
	require.NoError(t, err)

	assert.Same(t, page, got)
	assert.Zero(t, *calls)
	assert.Equal(t, []string{token}, l.driver.saved, "token persisted right after login")
	assert.FileExists(t, token)
}

func TestEnsureAuthenticatedAfterManualLogin(t *testing.T) {
	page := &fakePage{waits: []error{timeoutErr(), nil}}
	l := newLauncher(page)
	op, calls := countingOperator(true)
	m := NewManager(l.launch, op, Options{RowSelector: rowSel}, nil)

	sess, err := m.Acquire(context.Background(), "")
	require.NoError(t, err)

	_, err = m.EnsureAuthenticated(context.Background(), sess, listing, time.Second)
	require.NoError(t, err)

	assert.Equal(t, 1, *calls)
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, page.waited)
}

func TestEnsureAuthenticatedFatalAfterTwoExtendedFailures(t *testing.T) {
	page := &fakePage{waits: []error{timeoutErr(), timeoutErr(), timeoutErr(), nil}}
	l := newLauncher(page)
	op, calls := countingOperator(true, true, true)
	m := NewManager(l.launch, op, Options{RowSelector: rowSel, ExtendedTimeout: 5 * time.Second}, nil)

	sess, err := m.Acquire(context.Background(), "")
	require.NoError(t, err)

	_, err = m.EnsureAuthenticated(context.Background(), sess, listing, time.Second)
	assert.ErrorIs(t, err, ErrFatalAuth)
	assert.Equal(t, 2, *calls)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 5 * time.Second}, page.waited)
	assert.Empty(t, l.driver.saved)
}

func TestEnsureAuthenticatedOperatorStops(t *testing.T) {
	page := &fakePage{waits: []error{timeoutErr()}}
	l := newLauncher(page)
	m := NewManager(l.launch, AutoOperator{Answer: false}, Options{RowSelector: rowSel}, nil)

	sess, err := m.Acquire(context.Background(), "")
	require.NoError(t, err)

	_, err = m.EnsureAuthenticated(context.Background(), sess, listing, time.Second)
	assert.ErrorIs(t, err, ErrFatalAuth)
	assert.ErrorContains(t, err, "stopped by operator")
}

func TestEnsureAuthenticatedReturnsToListing(t *testing.T) {
	page := &fakePage{waits: []error{timeoutErr(), nil}}
	l := newLauncher(page)
	op := OperatorFunc(func(_ context.Context, _ string) (bool, error) {
		page.url = "https://www.amazon.com/ap/signin?openid.return_to=x"
		return true, nil
	})
	m := NewManager(l.launch, op, Options{RowSelector: rowSel}, nil)

	sess, err := m.Acquire(context.Background(), "")
	require.NoError(t, err)

	_, err = m.EnsureAuthenticated(context.Background(), sess, listing, time.Second)
	require.NoError(t, err)
	assert.Equal(t, listing, page.url)
}

func TestEnsureAuthenticatedNavigationFailure(t *testing.T) {
	page := &fakePage{gotoErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	l := newLauncher(page)
	m := NewManager(l.launch, nil, Options{RowSelector: rowSel}, nil)

	sess, err := m.Acquire(context.Background(), "")
	require.NoError(t, err)

	_, err = m.EnsureAuthenticated(context.Background(), sess, listing, time.Second)
	assert.ErrorIs(t, err, ErrFatalAuth)
}

func TestPersistFailureIsNotFatal(t *testing.T) {
	l := newLauncher(&fakePage{})
	l.driver.saveErr = errors.New("read-only file system")
	m := NewManager(l.launch, nil, Options{RowSelector: rowSel}, nil)

	sess, err := m.Acquire(context.Background(), "")
	require.NoError(t, err)

	assert.NotPanics(t, func() { m.Persist(sess, "/ro/auth.json") })
	assert.NotPanics(t, func() { m.Persist(nil, "/ro/auth.json") })
}

func TestSessionCloseReleasesEverything(t *testing.T) {
	page := &fakePage{}
	l := newLauncher(page)
	m := NewManager(l.launch, nil, Options{RowSelector: rowSel}, nil)

	sess, err := m.Acquire(context.Background(), "")
	require.NoError(t, err)
	_, err = m.EnsureAuthenticated(context.Background(), sess, listing, time.Second)
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	assert.True(t, page.closed)
	assert.True(t, l.driver.closed)
}

func TestTerminalOperator(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"\n", true},
		{"yes\n", true},
		{"S\n", false},
		{" s \n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			var out bytes.Buffer
			op := NewTerminalOperator(strings.NewReader(tt.input), &out)

			got, err := op.Confirm(context.Background(), DefaultPrompt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, DefaultPrompt, out.String())
		})
	}
}

func TestTerminalOperatorCanceled(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewTerminalOperator(r, &bytes.Buffer{}).Confirm(ctx, "? ")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTerminalOperatorReusableAfterCancel(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	op := NewTerminalOperator(r, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = op.Confirm(ctx, "? ")
	require.ErrorIs(t, err, context.Canceled)

	_, err = w.Write([]byte("s\n"))
	require.NoError(t, err)

	got, err := op.Confirm(context.Background(), "? ")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestTerminalOperatorEndOfInputStaysStopped(t *testing.T) {
	op := NewTerminalOperator(strings.NewReader("\n"), &bytes.Buffer{})

	got, err := op.Confirm(context.Background(), "? ")
	require.NoError(t, err)
	assert.True(t, got)

	for i := 0; i < 2; i++ {
		got, err = op.Confirm(context.Background(), "? ")
		require.NoError(t, err)
		assert.False(t, got)
	}
}
