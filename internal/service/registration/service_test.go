package registration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/gfgkiit/trapped/internal/apperr"
	"github.com/gfgkiit/trapped/internal/cache"
	"github.com/gfgkiit/trapped/internal/domain"
	"github.com/gfgkiit/trapped/internal/repository"
	"github.com/gfgkiit/trapped/internal/repository/memory"
	"github.com/gfgkiit/trapped/internal/validation"
	"github.com/gfgkiit/trapped/internal/ws"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func anaPayload() validation.RegistrationInput {
	return validation.RegistrationInput{
		Username: "Ana",
		Contact:  "9876543210",
		Email:    "ana@kiit.ac.in",
		Year:     "2",
		WhyGfg:   "Because I love it",
		Domain1:  "Web Dev",
		DeviceID: "abcdef1234567890",
	}
}

type recordingFeed struct {
	mu     sync.Mutex
	topics []string
	events []domain.Event
}

func (f *recordingFeed) Publish(topic string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	if ev, ok := v.(domain.Event); ok {
		f.events = append(f.events, ev)
	}
	return nil
}

func newService(repo repository.RegistrationRepository, opts Options) Service {
	return New(repo, validation.New(validation.DefaultPolicy()), discardLogger(), opts)
}

func TestRegisterAssignsIDAndPublishes(t *testing.T) {
	feed := &recordingFeed{}
	fixed := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	svc := newService(memory.New(), Options{Feed: feed, Clock: func() time.Time { return fixed }})

	reg, err := svc.Register(context.Background(), anaPayload())
	require.NoError(t, err)
	assert.NotEmpty(t, reg.ID)
	assert.Equal(t, fixed, reg.CreatedAt)
	assert.Equal(t, "ana@kiit.ac.in", reg.Email)

	require.Len(t, feed.events, 1)
	assert.Equal(t, domain.TopicRegistrations, feed.topics[0])
	assert.Equal(t, domain.Event{Type: EventCreated, ID: reg.ID, Name: "Ana", At: fixed}, feed.events[0])
}

func TestRegisterIdenticalPayloadTwiceIsDeviceConflict(t *testing.T) {
	svc := newService(memory.New(), Options{})
	_, err := svc.Register(context.Background(), anaPayload())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), anaPayload())
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, apperr.ReasonDeviceRegistered, apperr.ReasonOf(err))
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, msgDeviceRegistered, appErr.Message)
}

func TestRegisterSameEmailOtherDeviceIsEmailConflict(t *testing.T) {
	svc := newService(memory.New(), Options{})
	_, err := svc.Register(context.Background(), anaPayload())
	require.NoError(t, err)

	again := anaPayload()
	again.DeviceID = "other-device"
	again.Email = "ANA@kiit.ac.in"
	_, err = svc.Register(context.Background(), again)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, apperr.ReasonEmailRegistered, apperr.ReasonOf(err))
}

func TestRegisterValidationFailureSkipsStorage(t *testing.T) {
	repo := &stubRepo{}
	svc := newService(repo, Options{})
	in := anaPayload()
	in.Year = "5"

	_, err := svc.Register(context.Background(), in)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, repo.calls)
}

func TestDeviceConflictPropertyIgnoresOtherFields(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		svc := newService(memory.New(), Options{})
		first := anaPayload()
		_, err := svc.Register(context.Background(), first)
		require.NoError(t, err)

		second := anaPayload()
		second.Username = rapid.StringMatching(`[A-Za-z]{1,12}`).Draw(t, "name")
		second.Email = rapid.StringMatching(`[a-z]{1,10}`).Draw(t, "local") + "@kiit.ac.in"
		second.Contact = validation.Scalar(rapid.StringMatching(`[0-9]{10}`).Draw(t, "contact"))
		second.Year = validation.Scalar(rapid.SampledFrom([]string{"1", "2", "3"}).Draw(t, "year"))
		second.Domain1 = rapid.SampledFrom([]string{"Cloud", "AI-ML", "UI/UX"}).Draw(t, "domain")

		_, err = svc.Register(context.Background(), second)
		require.Error(t, err)
		require.Equal(t, apperr.ReasonDeviceRegistered, apperr.ReasonOf(err))
	})
}

func TestEmailConflictProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		svc := newService(memory.New(), Options{})
		email := rapid.StringMatching(`[a-z]{1,10}[0-9]{0,4}`).Draw(t, "local") + "@kiit.ac.in"
		first := anaPayload()
		first.Email = email
		_, err := svc.Register(context.Background(), first)
		require.NoError(t, err)

		second := anaPayload()
		second.Email = email
		second.DeviceID = "device-" + rapid.StringMatching(`[a-f0-9]{8}`).Draw(t, "device")
		_, err = svc.Register(context.Background(), second)
		require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		require.Equal(t, apperr.ReasonEmailRegistered, apperr.ReasonOf(err))
	})
}

// stubRepo reports no existing records on lookup and fails inserts with
// insertErr, which lets tests reproduce the check-then-write window.
type stubRepo struct {
	mu        sync.Mutex
	calls     int
	lookupErr error
	insertErr error
}

func (s *stubRepo) touch() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *stubRepo) CreateRegistration(context.Context, *domain.Registration) error {
	s.touch()
	return s.insertErr
}

func (s *stubRepo) GetRegistrationByID(context.Context, string) (*domain.Registration, error) {
	s.touch()
	return nil, s.missing()
}

func (s *stubRepo) GetRegistrationByEmail(context.Context, string) (*domain.Registration, error) {
	s.touch()
	return nil, s.missing()
}

func (s *stubRepo) GetRegistrationByDevice(context.Context, string) (*domain.Registration, error) {
	s.touch()
	return nil, s.missing()
}

func (s *stubRepo) ListRegistrations(context.Context, repository.RegistrationFilter) ([]domain.Registration, error) {
	s.touch()
	return nil, s.lookupErr
}

func (s *stubRepo) missing() error {
	if s.lookupErr != nil {
		return s.lookupErr
	}
	return repository.ErrNotFound
}

func TestRegisterUniqueIndexRaceIsUpstream(t *testing.T) {
	repo := &stubRepo{insertErr: fmt.Errorf("%w: registrations_email_key", repository.ErrDuplicate)}
	svc := newService(repo, Options{})

	_, err := svc.Register(context.Background(), anaPayload())
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "internal server error", appErr.Message)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestConcurrentSameDeviceAdmitsExactlyOne(t *testing.T) {
	svc := newService(memory.New(), Options{})
	const workers = 16

	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := anaPayload()
			in.Email = fmt.Sprintf("user%d@kiit.ac.in", i)
			_, results[i] = svc.Register(context.Background(), in)
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range results {
		switch apperr.KindOf(err) {
		case apperr.KindUnknown:
			require.NoError(t, err)
			admitted++
		case apperr.KindConflict, apperr.KindUpstream:
		default:
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	assert.Equal(t, 1, admitted)
}

func TestStorageFailureIsUpstream(t *testing.T) {
	repo := &stubRepo{lookupErr: errors.New("connection refused")}
	svc := newService(repo, Options{})

	_, err := svc.Register(context.Background(), anaPayload())
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.NotContains(t, appErr.Message, "connection refused")

	_, err = svc.Get(context.Background(), uuid.NewString())
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))

	_, err = svc.DeviceRegistered(context.Background(), "dev")
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
}

func TestGetAndFindByEmail(t *testing.T) {
	svc := newService(memory.New(), Options{})
	reg, err := svc.Register(context.Background(), anaPayload())
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), " "+reg.ID+" ")
	require.NoError(t, err)
	assert.Equal(t, reg.ID, got.ID)

	got, err = svc.FindByEmail(context.Background(), "  ANA@kiit.ac.in")
	require.NoError(t, err)
	assert.Equal(t, reg.ID, got.ID)

	_, err = svc.Get(context.Background(), uuid.NewString())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = svc.FindByEmail(context.Background(), "nobody@kiit.ac.in")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = svc.Get(context.Background(), "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.FindByEmail(context.Background(), " ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDeviceRegisteredUsesCache(t *testing.T) {
	devices := cache.New[bool]("devices", time.Minute, 0)
	repo := memory.New()
	svc := newService(repo, Options{Devices: devices, DeviceTTL: time.Minute})

	registered, err := svc.DeviceRegistered(context.Background(), "abcdef1234567890")
	require.NoError(t, err)
	assert.False(t, registered)
	assert.Zero(t, devices.Len())

	_, err = svc.Register(context.Background(), anaPayload())
	require.NoError(t, err)
	hit, ok := devices.Get("abcdef1234567890")
	assert.True(t, ok)
	assert.True(t, hit)

	// A cached positive answer does not touch storage.
	cachedOnly := newService(&stubRepo{lookupErr: errors.New("down")}, Options{Devices: devices})
	registered, err = cachedOnly.DeviceRegistered(context.Background(), "abcdef1234567890")
	require.NoError(t, err)
	assert.True(t, registered)

	_, err = svc.DeviceRegistered(context.Background(), "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCard(t *testing.T) {
	svc := newService(memory.New(), Options{})
	in := anaPayload()
	in.Domain2 = "ai-ml"
	in.Github = "https://github.com/ana"
	reg, err := svc.Register(context.Background(), in)
	require.NoError(t, err)

	card, err := svc.Card(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", card.Name)
	assert.Equal(t, "AI/ML", card.Domain2)
	assert.Equal(t, reg.CreatedAt, card.MemberSince)
	assert.Len(t, card.TrainerNo, 9)
	assert.Equal(t, byte('#'), card.TrainerNo[0])

	_, err = svc.Card(context.Background(), uuid.NewString())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestMalformedIDIsValidationBeforeStorage(t *testing.T) {
	repo := &stubRepo{lookupErr: errors.New("invalid input syntax for type uuid")}
	svc := newService(repo, Options{})

	for _, id := range []string{"abc", "missing", "1234", "'; drop table registrations; --"} {
		_, err := svc.Get(context.Background(), id)
		e, ok := apperr.As(err)
		require.True(t, ok, id)
		assert.Equal(t, apperr.KindValidation, e.Kind, id)
		assert.Equal(t, "id", e.Field)

		_, err = svc.Card(context.Background(), id)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), id)
	}
	assert.Zero(t, repo.calls)
}

func TestTrainerNo(t *testing.T) {
	assert.Equal(t, "#1B4E28BA", trainerNo("1b4e28ba-2fa1-11d2-883f-0016d3cca427"))
	assert.Equal(t, "#AB", trainerNo("ab"))
}

// stalledSubscriber never finishes a write until it is closed.
type stalledSubscriber struct {
	release chan struct{}
	once    sync.Once
}

func (s *stalledSubscriber) Send([]byte) error {
	<-s.release
	return errors.New("closed")
}

func (s *stalledSubscriber) Close() { s.once.Do(func() { close(s.release) }) }

func TestRegisterDoesNotWaitOnStalledFeedSubscriber(t *testing.T) {
	hub := ws.NewHub()
	defer hub.Close()
	hub.Register(domain.TopicRegistrations, &stalledSubscriber{release: make(chan struct{})})

	svc := newService(memory.New(), Options{Feed: hub})
	done := make(chan error, 2)
	go func() {
		for i := 0; i < 2; i++ {
			in := anaPayload()
			in.Email = fmt.Sprintf("applicant%d@kiit.ac.in", i)
			in.DeviceID = fmt.Sprintf("device-%d", i)
			_, err := svc.Register(context.Background(), in)
			done <- err
		}
	}()
	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("registration blocked on the admin feed")
		}
	}
}
