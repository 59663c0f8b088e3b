package delivery

import (
	"aywatch/internal/components/chrono"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/listing"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type sent struct {
	ChatID int64
	Kind   PlanKind
	Text   string
	Photos []Photo
	Mode   ParseMode
}

// fakeTransport returns the queued errors of a chat in order, then succeeds.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []sent
	errors map[int64][]error
	// delay is applied to every send so concurrent deliveries overlap.
	delay    time.Duration
	inflight map[int64]int
	overlap  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		errors:   map[int64][]error{},
		inflight: map[int64]int{},
	}
}

func (f *fakeTransport) fail(chatId int64, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[chatId] = append(f.errors[chatId], errs...)
}

func (f *fakeTransport) record(s sent) error {
	f.mu.Lock()
	f.inflight[s.ChatID]++
	if f.inflight[s.ChatID] > 1 {
		f.overlap = true
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight[s.ChatID]--
	f.sent = append(f.sent, s)
	queue := f.errors[s.ChatID]
	if len(queue) == 0 {
		return nil
	}
	f.errors[s.ChatID] = queue[1:]
	return queue[0]
}

func (f *fakeTransport) SendText(ctx context.Context, chatId int64, text string, mode ParseMode) error {
	return f.record(sent{ChatID: chatId, Kind: PLAN_TEXT, Text: text, Mode: mode})
}

func (f *fakeTransport) SendPhoto(ctx context.Context, chatId int64, photo Photo, mode ParseMode) error {
	return f.record(sent{ChatID: chatId, Kind: PLAN_PHOTO, Photos: []Photo{photo}, Mode: mode})
}

func (f *fakeTransport) SendAlbum(ctx context.Context, chatId int64, photos []Photo, mode ParseMode) error {
	return f.record(sent{ChatID: chatId, Kind: PLAN_ALBUM, Photos: photos, Mode: mode})
}

func (f *fakeTransport) Sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeEscalator struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeEscalator) Critical(ctx context.Context, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

func (f *fakeEscalator) Messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type fixture struct {
	transport *fakeTransport
	escalator *fakeEscalator
	clock     *chrono.FakeImpl
	tel       *telemetry.TestingAPI
	notifier  *Notifier
}

func newFixture(recipients ...int64) fixture {
	f := fixture{
		transport: newFakeTransport(),
		escalator: &fakeEscalator{},
		clock:     chrono.NewFakeImpl(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		tel:       telemetry.NewTestingAPI(),
	}
	f.notifier = NewNotifier(
		f.transport,
		func() []int64 { return recipients },
		f.escalator,
		f.clock,
		f.tel,
	)
	return f
}

func lot(images int) listing.Listing {
	l := listing.Listing{
		Url:   "https://coins.ay.by/lot/1.html",
		Title: "1 рубль 1924",
		Price: "120 руб.",
	}
	for i := 0; i < images; i++ {
		l.GalleryUrls = append(l.GalleryUrls, fmt.Sprintf("https://img.ay.by/%d.jpg", i))
	}
	return l
}

func TestBuildCaption(t *testing.T) {
	l := listing.Listing{
		Url:   "https://coins.ay.by/lot/1.html?a=1&b=2",
		Title: "Рубль <1924> & копейка",
		Price: "120 руб.",
	}
	caption := BuildCaption(l, "Юбилейные", "https://coins.ay.by/sssr/")

	require.Equal(t, "🆕 <b>Новый лот!</b>\n\n"+
		"<b>Рубль &lt;1924&gt; &amp; копейка</b>\n"+
		"📂 <a href=\"https://coins.ay.by/sssr/\">Юбилейные</a>\n"+
		"💰 Цена: <b>120 руб.</b>\n"+
		"🔗 <a href=\"https://coins.ay.by/lot/1.html?a=1&amp;b=2\">https://coins.ay.by/lot/1.html?a=1&amp;b=2</a>",
		caption,
	)

	l.Price = listing.NoPrice
	caption = BuildCaption(l, "", "")
	require.Contains(t, caption, "💰 Цена: <i>не указана</i>\n")
	require.NotContains(t, caption, "📂")
}

func TestBuildCaptionTruncatesLongTitles(t *testing.T) {
	l := lot(0)
	l.Title = strings.Repeat("ж", 500)
	caption := BuildCaption(l, "", "")
	require.Contains(t, caption, strings.Repeat("ж", maxTitleRunes-1)+"…</b>")
	require.NotContains(t, caption, strings.Repeat("ж", maxTitleRunes))
}

func TestStripMarkup(t *testing.T) {
	caption := BuildCaption(listing.Listing{
		Url:   "https://coins.ay.by/lot/1.html",
		Title: "Рубль <1924> & копейка",
		Price: listing.NoPrice,
	}, "", "")

	require.Equal(t, "🆕 Новый лот!\n\n"+
		"Рубль <1924> & копейка\n"+
		"💰 Цена: не указана\n"+
		"🔗 https://coins.ay.by/lot/1.html",
		StripMarkup(caption),
	)
}

func TestBuildPlan(t *testing.T) {
	testCases := []struct {
		name   string
		images int
		kind   PlanKind
		photos int
	}{
		{name: "no images", images: 0, kind: PLAN_TEXT, photos: 0},
		{name: "single image", images: 1, kind: PLAN_PHOTO, photos: 1},
		{name: "several images", images: 4, kind: PLAN_ALBUM, photos: 4},
		{name: "album is capped", images: 15, kind: PLAN_ALBUM, photos: MAX_ALBUM_SIZE},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			plan := BuildPlan(lot(test.images), "caption")
			require.Equal(t, test.kind, plan.Kind)
			require.Len(t, plan.Photos, test.photos)

			if test.kind == PLAN_TEXT {
				require.Equal(t, "caption", plan.Text)
				return
			}
			require.Equal(t, "caption", plan.Photos[0].Caption)
			for _, photo := range plan.Photos[1:] {
				require.Empty(t, photo.Caption)
			}
		})
	}
}

func TestBuildPlanFallsBackToThumbnail(t *testing.T) {
	l := lot(0)
	l.ImageUrl = "https://img.ay.by/thumb.jpg"
	plan := BuildPlan(l, "caption")
	require.Equal(t, PLAN_PHOTO, plan.Kind)
	require.Equal(t, "https://img.ay.by/thumb.jpg", plan.Photos[0].Url)
}

func TestNotifyDeliversToEveryRecipient(t *testing.T) {
	f := newFixture(1, 2)
	outcomes := f.notifier.Notify(context.Background(), lot(3), "Юбилейные", "https://coins.ay.by/sssr/")

	require.Len(t, outcomes, 2)
	for _, outcome := range outcomes {
		require.Equal(t, STATUS_DELIVERED, outcome.Status)
		require.Equal(t, 1, outcome.Attempts)
	}

	sent := f.transport.Sent()
	require.Len(t, sent, 2)
	for _, s := range sent {
		require.Equal(t, PLAN_ALBUM, s.Kind)
		require.Equal(t, PARSE_MODE_HTML, s.Mode)
		require.Len(t, s.Photos, 3)
	}
	require.Equal(t, []time.Duration{PAUSE_AFTER_ALBUM, PAUSE_AFTER_ALBUM}, f.clock.Sleeps())
	require.Empty(t, f.escalator.Messages())
}

func TestRateLimitWaitsAndRetries(t *testing.T) {
	f := newFixture(1)
	f.transport.fail(1, &Error{Kind: KIND_RATE_LIMITED, RetryAfter: 5 * time.Second})

	outcomes := f.notifier.Notify(context.Background(), lot(1), "", "")
	require.Equal(t, STATUS_DELIVERED, outcomes[0].Status)
	require.Equal(t, 2, outcomes[0].Attempts)
	require.Equal(t, []time.Duration{6 * time.Second, PAUSE_AFTER_MESSAGE}, f.clock.Sleeps())
	require.Empty(t, f.escalator.Messages())
}

func TestUnreachableRecipientIsSkipped(t *testing.T) {
	f := newFixture(1, 2)
	f.transport.fail(1, &Error{Kind: KIND_UNREACHABLE, Description: "Forbidden: bot was blocked by the user"})

	outcomes := f.notifier.Notify(context.Background(), lot(0), "", "")
	require.Equal(t, Outcome{
		ChatID:   1,
		Status:   STATUS_UNREACHABLE,
		Attempts: 1,
		Err:      &Error{Kind: KIND_UNREACHABLE, Description: "Forbidden: bot was blocked by the user"},
	}, outcomes[0])
	require.Equal(t, STATUS_DELIVERED, outcomes[1].Status)

	require.Len(t, f.transport.Sent(), 2)
	require.Empty(t, f.escalator.Messages())
	require.Len(t, f.tel.Reports("warning", report_notifier_deliver), 1)
}

func TestMalformedFallsBackToPlainTextOnce(t *testing.T) {
	f := newFixture(1)
	f.transport.fail(1, &Error{Kind: KIND_MALFORMED, Description: "can't parse entities"})

	outcomes := f.notifier.Notify(context.Background(), lot(1), "Юбилейные", "https://coins.ay.by/sssr/")
	require.Equal(t, STATUS_DELIVERED, outcomes[0].Status)
	require.True(t, outcomes[0].Plain)
	require.Equal(t, 1, outcomes[0].Attempts)

	sent := f.transport.Sent()
	require.Len(t, sent, 2)
	require.Equal(t, PARSE_MODE_HTML, sent[0].Mode)
	require.Equal(t, PARSE_MODE_NONE, sent[1].Mode)
	require.NotContains(t, sent[1].Photos[0].Caption, "<b>")
	require.Contains(t, sent[1].Photos[0].Caption, "Новый лот!")
}

func TestMalformedTwiceEscalates(t *testing.T) {
	f := newFixture(1)
	malformed := &Error{Kind: KIND_MALFORMED, Description: "can't parse entities"}
	f.transport.fail(1, malformed, malformed)

	outcomes := f.notifier.Notify(context.Background(), lot(0), "", "")
	require.Equal(t, STATUS_FAILED, outcomes[0].Status)
	require.Len(t, f.transport.Sent(), 2)

	messages := f.escalator.Messages()
	require.Len(t, messages, 1)
	require.Contains(t, messages[0], "Получатель: 1")
	require.Contains(t, messages[0], "https://coins.ay.by/lot/1.html")
}

func TestExhaustedAttemptsEscalate(t *testing.T) {
	f := newFixture(7)
	other := &Error{Kind: KIND_OTHER, Description: "Bad Gateway"}
	f.transport.fail(7, other, other, other, other)

	outcomes := f.notifier.Notify(context.Background(), lot(0), "", "")
	require.Equal(t, STATUS_FAILED, outcomes[0].Status)
	require.Equal(t, MAX_ATTEMPTS, outcomes[0].Attempts)
	require.ErrorIs(t, outcomes[0].Err, other)
	require.Len(t, f.transport.Sent(), MAX_ATTEMPTS)

	messages := f.escalator.Messages()
	require.Len(t, messages, 1)
	require.Contains(t, messages[0], "Получатель: 7")
	require.Contains(t, messages[0], "Bad Gateway")
	require.Len(t, f.tel.Reports("warning", report_notifier_deliver), MAX_ATTEMPTS+1)
}

func TestUnexpectedErrorEscalatesImmediately(t *testing.T) {
	f := newFixture(1)
	boom := errors.New("boom")
	f.transport.fail(1, boom)

	outcomes := f.notifier.Notify(context.Background(), lot(0), "", "")
	require.Equal(t, STATUS_FAILED, outcomes[0].Status)
	require.Equal(t, 1, outcomes[0].Attempts)
	require.ErrorIs(t, outcomes[0].Err, boom)
	require.Len(t, f.transport.Sent(), 1)
	require.Len(t, f.escalator.Messages(), 1)
}

func TestCancelledContextStopsDelivery(t *testing.T) {
	f := newFixture(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := f.notifier.Notify(ctx, lot(0), "", "")
	require.Equal(t, STATUS_CANCELLED, outcomes[0].Status)
	require.Empty(t, f.transport.Sent())
	require.Empty(t, f.escalator.Messages())
}

func TestDeliveriesToOneRecipientDoNotInterleave(t *testing.T) {
	f := newFixture(1)
	f.transport.delay = 5 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.notifier.Broadcast(context.Background(), fmt.Sprintf("message %d", i))
		}()
	}
	wg.Wait()

	require.Len(t, f.transport.Sent(), 4)
	require.False(t, f.transport.overlap)
	require.Len(t, f.notifier.locks, 1)
}

func TestBroadcast(t *testing.T) {
	f := newFixture(1, 2, 3)
	outcomes := f.notifier.Broadcast(context.Background(), "<b>Плановые работы</b>")

	require.Len(t, outcomes, 3)
	got := map[int64]string{}
	for _, s := range f.transport.Sent() {
		require.Equal(t, PLAN_TEXT, s.Kind)
		got[s.ChatID] = s.Text
	}
	require.Empty(t, cmp.Diff(map[int64]string{
		1: "<b>Плановые работы</b>",
		2: "<b>Плановые работы</b>",
		3: "<b>Плановые работы</b>",
	}, got))
}
