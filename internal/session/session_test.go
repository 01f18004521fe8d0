//go:build test

package session_test

import (
	"errors"
	"testing"

	"github.com/srg/blescope/internal/central"
	"github.com/srg/blescope/internal/device"
	"github.com/srg/blescope/internal/notify"
	"github.com/srg/blescope/internal/session"
	"github.com/srg/blescope/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const hrmAddr = "AA:BB:CC:DD:EE:FF"

type notification struct{ title, body string }

type SessionSuite struct {
	suite.Suite
	helper     *testutils.TestHelper
	fake       *testutils.FakeCentral
	coord      *central.Coordinator
	periph     *testutils.FakePeripheral
	handle     *session.PeripheralHandle
	sess       *session.Session
	events     []session.Event
	notes      []notification
	background bool
}

func (s *SessionSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.fake = testutils.NewFakeCentral(device.StatePoweredOn)
	s.fake.ConnectImmediately = true
	s.coord = central.New(s.fake.Factory(), s.helper.Logger)
	s.Require().NoError(s.coord.Start())

	s.periph = testutils.CreateHeartRatePeripheral(hrmAddr).Build()
	s.handle = session.NewPeripheralHandle(s.periph)
	s.events = nil
	s.notes = nil
	s.background = false
	s.sess = s.newSession(session.Options{})
}

func (s *SessionSuite) TearDownTest() {
	s.coord.Stop()
}

func (s *SessionSuite) newSession(opts session.Options) *session.Session {
	opts.Logger = s.helper.Logger
	opts.OnEvent = func(e session.Event) { s.events = append(s.events, e) }
	opts.IsBackground = func() bool { return s.background }
	if opts.Notifier == nil {
		opts.Notifier = notify.Func(func(title, body string) error {
			s.notes = append(s.notes, notification{title, body})
			return nil
		})
	}
	return session.New(s.coord, s.handle, opts)
}

func (s *SessionSuite) ev(list session.List, kind session.EventKind, idx ...int) session.Event {
	return session.Event{List: list, Kind: kind, Indices: idx}
}

func (s *SessionSuite) keys(recs []session.CharacteristicRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Key()
	}
	return out
}

func (s *SessionSuite) TestDiscoveryToRead() {
	// GOAL: Verify a full walk from connect to known values emits ordered events
	//
	// TEST SCENARIO: Open → connected → services → characteristics (inserted) → each value read (updated) → settled

	s.sess.Open()

	s.Equal([]session.Event{
		s.ev(session.Services, session.Inserted, 0, 1),
		s.ev(session.Characteristics, session.Inserted, 0, 1),
		s.ev(session.Characteristics, session.Updated, 0),
		s.ev(session.Characteristics, session.Updated, 1),
		s.ev(session.Characteristics, session.Inserted, 2),
		s.ev(session.Characteristics, session.Updated, 2),
	}, s.events)

	s.Equal(session.ServicesDiscovered, s.sess.Phase())
	s.True(s.sess.Settled(), "walk MUST settle once every value is known")
	for _, svc := range []string{"180d", "180f"} {
		phase, ok := s.sess.ServicePhase(svc)
		s.True(ok)
		s.Equal(session.ValuesKnown, phase, "service %s", svc)
	}

	chars := s.sess.Characteristics()
	s.Equal([]string{"180d/2a37", "180d/2a38", "180f/2a19"}, s.keys(chars))
	s.Equal([]byte{0x00, 0x50}, chars[0].Value)
	s.Equal("Heart Rate Measurement", chars[0].KnownName)
	s.Require().Len(chars[0].Descriptors, 1)
	s.Equal("2902", chars[0].Descriptors[0].UUID)
	s.True(s.handle.Connected())

	s.Equal(1, s.periph.CountCalls("DiscoverServices"))
	s.Equal(3, s.periph.CountCalls("ReadValue:"), "MUST read every new characteristic")
	s.Equal(3, s.periph.CountCalls("DiscoverDescriptors:"), "MUST discover descriptors of every new characteristic")
}

func (s *SessionSuite) TestRediscoveryUpdatesWithoutDuplicating() {
	// GOAL: Verify a second discovery of the same GATT database only produces updates
	//
	// TEST SCENARIO: Open → full walk → services delivered again → Updated events only, no new reads, values kept

	s.sess.Open()
	s.events = nil

	s.periph.DeliverServices()

	s.Equal([]session.Event{
		s.ev(session.Services, session.Updated, 0, 1),
		s.ev(session.Characteristics, session.Updated, 0, 1),
		s.ev(session.Characteristics, session.Updated, 2),
	}, s.events)
	s.Len(s.sess.Services(), 2)
	s.Len(s.sess.Characteristics(), 3)
	s.Equal(3, s.periph.CountCalls("ReadValue:"), "rediscovery MUST NOT re-read known characteristics")

	rec, ok := s.sess.Characteristic("0000180D-0000-1000-8000-00805F9B34FB/2A37")
	s.Require().True(ok)
	s.Equal([]byte{0x00, 0x50}, rec.Value, "rediscovery MUST keep the last value")
	s.True(s.sess.Settled())
}

func (s *SessionSuite) TestIgnoresCallbacksForOtherPeripherals() {
	// GOAL: Verify callbacks for another identity are discarded
	//
	// TEST SCENARIO: Open with manual responses → foreign peripheral reports services/values → nothing changes

	s.periph.SetAutoRespond(false)
	s.sess.Open()
	s.Equal(session.Connected, s.sess.Phase())

	other := testutils.CreateHeartRatePeripheral("11:22:33:44:55:66").Build()
	s.sess.DidDiscoverServices(other, other.Services(), nil)
	s.sess.DidUpdateValue(other, nil, []byte{1}, nil)
	s.sess.DidDiscoverServices(nil, nil, nil)

	s.Empty(s.events, "foreign callbacks MUST NOT emit events")
	s.Empty(s.sess.Services())
	s.Equal(session.Connected, s.sess.Phase())
	s.Contains(s.helper.Logs.String(), device.ErrIdentityMismatch.Error())
}

func (s *SessionSuite) TestServiceDiscoveryErrorLeavesConnected() {
	// GOAL: Verify a failed service discovery is logged and leaves the session Connected
	//
	// TEST SCENARIO: services answer with error → phase stays Connected → LastError is a TransportError → no events

	cause := errors.New("att: request not supported")
	s.periph.FailNext("services", cause)

	s.sess.Open()

	s.Equal(session.Connected, s.sess.Phase())
	s.Empty(s.events)
	var terr *device.TransportError
	s.Require().ErrorAs(s.sess.LastError(), &terr)
	s.Equal("discover services", terr.Op)
	s.ErrorIs(s.sess.LastError(), cause)
	s.False(s.sess.Settled())
	s.Equal(0, s.periph.CountCalls("DiscoverCharacteristics:"), "MUST NOT retry or continue the walk")
}

func (s *SessionSuite) TestReadErrorStillSettles() {
	// GOAL: Verify a failed value read does not block the walk
	//
	// TEST SCENARIO: first read fails → no Updated for it → service still reaches ValuesKnown

	s.periph.FailNext("read", errors.New("insufficient authentication"))

	s.sess.Open()

	s.True(s.sess.Settled())
	chars := s.sess.Characteristics()
	s.False(chars[0].HasValue)
	s.True(chars[1].HasValue)
	s.NotContains(s.events, s.ev(session.Characteristics, session.Updated, 0))
}

func (s *SessionSuite) TestEveryNewCharacteristicIsRead() {
	// GOAL: Verify the read request does not depend on characteristic properties
	//
	// TEST SCENARIO: notify-only and read characteristics → one ReadValue each → refused read recorded → walk settles

	s.periph = testutils.NewPeripheralBuilder(hrmAddr, "Ctl").
		WithService("ffe0").
		WithCharacteristic("ffe1", "notify", nil).
		WithCharacteristic("ffe2", "read", []byte("ok")).
		Build()
	s.handle = session.NewPeripheralHandle(s.periph)
	s.sess = s.newSession(session.Options{})

	s.sess.Open()

	s.Equal(1, s.periph.CountCalls("ReadValue:ffe0/ffe1"), "MUST read a characteristic without the read property")
	s.Equal(1, s.periph.CountCalls("ReadValue:ffe0/ffe2"))
	s.Equal(1, s.periph.CountCalls("DiscoverDescriptors:ffe0/ffe1"))
	s.Equal(1, s.periph.CountCalls("DiscoverDescriptors:ffe0/ffe2"))
	s.True(s.sess.Settled(), "a refused read MUST NOT block the walk")

	var terr *device.TransportError
	s.Require().ErrorAs(s.sess.LastError(), &terr)
	s.Equal("read", terr.Op)
	s.ErrorIs(s.sess.LastError(), device.ErrUnsupported)

	chars := s.sess.Characteristics()
	s.False(chars[0].HasValue)
	s.Equal([]byte("ok"), chars[1].Value)
}

func (s *SessionSuite) TestRadioLossClearsRecords() {
	// GOAL: Verify the session drops its records when the radio becomes unusable
	//
	// TEST SCENARIO: full walk → Powered Off → ClearedAll for both lists, phase Discovered → Powered On → nothing comes back

	s.sess.Open()
	s.events = nil

	s.fake.EmitState(device.StatePoweredOff)

	s.Equal([]session.Event{
		s.ev(session.Services, session.ClearedAll),
		s.ev(session.Characteristics, session.ClearedAll),
	}, s.events)
	s.Equal(session.Discovered, s.sess.Phase())
	s.Empty(s.sess.Services())
	s.Empty(s.sess.Characteristics())
	s.False(s.handle.Connected())
	s.True(s.sess.IsOpen(), "radio loss MUST NOT tear the session down")

	s.events = nil
	s.fake.EmitState(device.StatePoweredOff)
	s.fake.EmitState(device.StatePoweredOn)
	s.Empty(s.events, "empty lists MUST NOT emit ClearedAll and PoweredOn MUST NOT resurrect records")
	s.Empty(s.sess.Characteristics())
}

func (s *SessionSuite) TestConnectFailureReturnsToDiscovered() {
	// GOAL: Verify a failed connection leaves the session idle with the error recorded
	//
	// TEST SCENARIO: connect fails → phase Discovered → Connect again issues a second request

	s.fake.ConnectImmediately = false
	s.sess.Open()
	s.Equal(session.Connecting, s.sess.Phase())

	s.sess.Connect()
	s.Equal(1, s.fake.CountCalls("Connect:"+hrmAddr), "Connect MUST be idempotent while connecting")

	s.fake.EmitConnectFailed(s.periph, errors.New("connection timed out"))
	s.Equal(session.Discovered, s.sess.Phase())
	s.ErrorContains(s.sess.LastError(), "connect failed")

	s.sess.Connect()
	s.Equal(2, s.fake.CountCalls("Connect:"+hrmAddr))
}

func (s *SessionSuite) TestTeardownHappensOnce() {
	// GOAL: Verify teardown unsubscribes, detaches and disconnects exactly once
	//
	// TEST SCENARIO: Open → subscribe 2A37 → Teardown twice → one unsubscribe, one disconnect, no observer, cleared lists

	s.sess.Open()
	s.Require().NoError(s.sess.SetNotify("180d/2a37", true))
	rec, _ := s.sess.Characteristic("180d/2a37")
	s.True(rec.Notifying)
	s.events = nil

	s.sess.Teardown()
	s.sess.Teardown()

	s.Equal(1, s.periph.CountCalls("Unsubscribe:180d/2a37"), "MUST unsubscribe exactly once")
	s.Equal(1, s.periph.CountCalls("Unsubscribe:180d/2a38"), "MUST unsubscribe every tracked characteristic")
	s.Equal(1, s.periph.CountCalls("Unsubscribe:180f/2a19"), "MUST unsubscribe every tracked characteristic")
	s.Equal(1, s.fake.CountCalls("CancelConnection:"+hrmAddr), "MUST disconnect exactly once")
	s.Nil(s.periph.Delegate(), "MUST detach as delegate")
	s.Equal(0, s.coord.ObserverCount(), "MUST unregister from the coordinator")
	s.Equal(session.Discovered, s.sess.Phase())
	s.Empty(s.sess.Services())
	s.Empty(s.sess.Characteristics())
	s.Equal([]session.Event{
		s.ev(session.Services, session.ClearedAll),
		s.ev(session.Characteristics, session.ClearedAll),
	}, s.events)
	s.False(s.handle.Connected())
}

func (s *SessionSuite) TestLateCallbacksAfterTeardownAreIgnored() {
	// GOAL: Verify a torn-down session never mutates or emits again
	//
	// TEST SCENARIO: Open → keep platform objects → Teardown → deliver services/value/connect directly → nothing

	s.sess.Open()
	services := s.periph.Services()
	chr := s.sess.Characteristics()[0].Platform()
	s.sess.Teardown()
	s.events = nil

	s.sess.DidDiscoverServices(s.periph, services, nil)
	s.sess.DidUpdateValue(s.periph, chr, []byte{9}, nil)
	s.sess.DidUpdateNotificationState(s.periph, chr, true, nil)
	s.fake.EmitConnected(s.periph)

	s.Empty(s.events)
	s.Empty(s.sess.Services())
	s.Equal(session.Discovered, s.sess.Phase())
}

func (s *SessionSuite) TestReopenStartsOver() {
	// GOAL: Verify Open after Teardown walks again from scratch
	//
	// TEST SCENARIO: Open → Teardown → Open → services inserted again

	s.sess.Open()
	s.sess.Teardown()
	s.events = nil

	s.sess.Open()
	s.Require().NotEmpty(s.events)
	s.Equal(s.ev(session.Services, session.Inserted, 0, 1), s.events[0])
	s.True(s.sess.Settled())
}

func (s *SessionSuite) TestBackgroundNotification() {
	// GOAL: Verify value updates raise a local notification only when backgrounded
	//
	// TEST SCENARIO: subscribe → value in foreground (no note) → background → value (note) → non-notifying value (note)

	s.sess.Open()
	s.Require().NoError(s.sess.SetNotify("180d/2a37", true))

	s.periph.DeliverValue("180d", "2a37", []byte{0x00, 0x48})
	s.Empty(s.notes, "foreground updates MUST NOT notify")

	s.background = true
	s.periph.DeliverValue("180d", "2a37", []byte{0x00, 0x49})
	s.Equal([]notification{{"HRM", "Heart Rate Measurement: 00 49"}}, s.notes)

	s.periph.DeliverValue("180f", "2a19", []byte{0x63})
	s.Equal(notification{"HRM", "Battery Level: c"}, s.notes[len(s.notes)-1], "every value update MUST notify while backgrounded")
	s.Len(s.notes, 2)
}

func (s *SessionSuite) TestNotifierErrorIsSwallowed() {
	// GOAL: Verify a failing notifier does not disturb the update
	//
	// TEST SCENARIO: notifier fails → Updated still emitted → warning logged

	s.sess = s.newSession(session.Options{
		Notifier: notify.Func(func(string, string) error { return errors.New("no display") }),
	})
	s.background = true
	s.sess.Open()
	s.Require().NoError(s.sess.SetNotify("180d/2a37", true))
	s.events = nil

	s.periph.DeliverValue("180d", "2a37", []byte{0x01})
	s.Equal([]session.Event{s.ev(session.Characteristics, session.Updated, 0)}, s.events)
	s.Contains(s.helper.Logs.String(), "Failed to deliver local notification")
}

func (s *SessionSuite) TestNotifyToggleAndValidation() {
	// GOAL: Verify notification toggling and its argument checks
	//
	// TEST SCENARIO: SetNotify before connect fails → toggle on/off by index → unsupported/unknown characteristics rejected

	s.ErrorIs(s.sess.SetNotify("180d/2a37", true), device.ErrNotConnected)

	s.sess.Open()
	s.Require().NoError(s.sess.ToggleNotify(0))
	rec, _ := s.sess.Characteristic("180d/2a37")
	s.True(rec.Notifying)

	s.Require().NoError(s.sess.ToggleNotify(0))
	rec, _ = s.sess.Characteristic("180d/2a37")
	s.False(rec.Notifying)

	s.ErrorIs(s.sess.SetNotify("180d/2a38", true), device.ErrUnsupported)

	var nf *device.NotFoundError
	s.ErrorAs(s.sess.SetNotify("180d/ffff", true), &nf)
	s.ErrorAs(s.sess.ToggleNotify(99), &nf)
}

func (s *SessionSuite) TestDisconnectStopsNotifying() {
	// GOAL: Verify a link loss clears notifying flags and returns to Discovered
	//
	// TEST SCENARIO: subscribe → disconnect(err) → Updated for the row → phase Discovered → LastError set

	s.sess.Open()
	s.Require().NoError(s.sess.SetNotify("180d/2a37", true))
	s.events = nil

	s.fake.EmitDisconnected(s.periph, errors.New("connection reset by peer"))

	s.Equal([]session.Event{s.ev(session.Characteristics, session.Updated, 0)}, s.events)
	s.Equal(session.Discovered, s.sess.Phase())
	s.Error(s.sess.LastError())
	s.False(s.handle.Connected())
	rec, _ := s.sess.Characteristic("180d/2a37")
	s.False(rec.Notifying)
}

func (s *SessionSuite) TestTargetServiceLimitsWalk() {
	// GOAL: Verify a target service restricts discovery to that service
	//
	// TEST SCENARIO: target 180F → DiscoverServices filter → only battery characteristic walked

	s.sess = s.newSession(session.Options{TargetService: "0x180F"})
	s.sess.Open()

	s.Equal([]string{"DiscoverServices:180f"}, s.periph.Calls()[:1])
	s.Equal([]string{"180f/2a19"}, s.keys(s.sess.Characteristics()))
	s.True(s.sess.Settled())
	_, tracked := s.sess.ServicePhase("180d")
	s.False(tracked)
}

func (s *SessionSuite) TestReadDescriptors() {
	// GOAL: Verify descriptor values are read when requested
	//
	// TEST SCENARIO: ReadDescriptors on → walk → CCCD value stored on the record

	s.sess = s.newSession(session.Options{ReadDescriptors: true})
	s.sess.Open()

	s.Equal(1, s.periph.CountCalls("ReadDescriptor:180d/2a37/2902"))
	rec, _ := s.sess.Characteristic("180d/2a37")
	s.Require().Len(rec.Descriptors, 1)
	s.Equal([]byte{0x00, 0x00}, rec.Descriptors[0].Value)
	s.Equal("Client Characteristic Configuration", rec.Descriptors[0].KnownName)
}

func (s *SessionSuite) TestHistoryRecordsNotifications() {
	// GOAL: Verify notifying values are kept in the bounded history
	//
	// TEST SCENARIO: subscribe → three notifications → history drained oldest first

	history := session.NewHistory(8)
	s.sess = s.newSession(session.Options{History: history})
	s.sess.Open()
	s.Require().NoError(s.sess.SetNotify("180d/2a37", true))

	for _, v := range []byte{1, 2, 3} {
		s.periph.DeliverValue("180d", "2a37", []byte{v})
	}

	samples := history.Drain("180d/2a37")
	s.Require().Len(samples, 3)
	s.Equal([]byte{1}, samples[0].Value)
	s.Equal([]byte{3}, samples[2].Value)
}

func (s *SessionSuite) TestChangedSignals() {
	// GOAL: Verify Changed is closed on state transitions
	//
	// TEST SCENARIO: grab channel → Open → channel closed

	ch := s.sess.Changed()
	s.sess.Open()
	select {
	case <-ch:
	default:
		s.Fail("Changed MUST be signalled after Open")
	}
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}
