package syncengine

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"

	"github.com/sd-io/sdcore/pkg/encoding"
)

// LastSeenKeeper persists, per peer device, the HLC timestamp of the most
// recent shared-log entry this device has successfully backfilled from
// that peer. It is grounded on the original Rust implementation's
// LastTimestampKeeper (core/crates/cloud-services/src/sync/receive.rs),
// which serializes the same map with rmp_serde into
// cloud_sync_data_keeper.bin; this is the direct Go equivalent, hand-coded
// against the low-level github.com/tinylib/msgp/msgp runtime (rather than
// generated) since the msgp code generator cannot be invoked here.
type LastSeenKeeper struct {
	mu   sync.Mutex
	path string
	seen map[string]HLC
}

// NewLastSeenKeeper constructs a keeper persisted at path, loading any
// existing state. A missing file is treated as an empty keeper, matching
// the original's behavior on first run.
func NewLastSeenKeeper(path string) (*LastSeenKeeper, error) {
	k := &LastSeenKeeper{path: path, seen: make(map[string]HLC)}
	err := encoding.LoadAndUnmarshal(path, func(data []byte) error {
		_, err := k.UnmarshalMsg(data)
		return err
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "syncengine: loading last-seen keeper")
	}
	return k, nil
}

// LastSeen returns the last HLC backfilled from device, or the zero HLC if
// nothing has been recorded for it yet.
func (k *LastSeenKeeper) LastSeen(device string) HLC {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.seen[device]
}

// Record updates the last-seen HLC for device and persists the keeper to
// disk, provided hlc is after whatever is already recorded (backfill pages
// can be retried, and must never regress the watermark).
func (k *LastSeenKeeper) Record(device string, hlc HLC) error {
	k.mu.Lock()
	if !hlc.After(k.seen[device]) {
		k.mu.Unlock()
		return nil
	}
	k.seen[device] = hlc
	k.mu.Unlock()

	return encoding.MarshalAndSave(k.path, func() ([]byte, error) {
		k.mu.Lock()
		defer k.mu.Unlock()
		return k.MarshalMsg(nil)
	})
}

// MarshalMsg appends the MessagePack encoding of the keeper's state to b,
// as a map of device id to HLC fields, hand-written against msgp's
// low-level append helpers in place of generated code.
func (k *LastSeenKeeper) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendMapHeader(b, uint32(len(k.seen)))
	for device, hlc := range k.seen {
		o = msgp.AppendString(o, device)
		o = msgp.AppendMapHeader(o, 3)
		o = msgp.AppendString(o, "physical_ms")
		o = msgp.AppendInt64(o, hlc.PhysicalMS)
		o = msgp.AppendString(o, "counter")
		o = msgp.AppendUint32(o, hlc.Counter)
		o = msgp.AppendString(o, "device")
		o = msgp.AppendString(o, hlc.Device)
	}
	return o, nil
}

// UnmarshalMsg decodes bts into the keeper's state, returning any trailing
// unread bytes, the counterpart to MarshalMsg.
func (k *LastSeenKeeper) UnmarshalMsg(bts []byte) ([]byte, error) {
	count, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, errors.Wrap(err, "syncengine: reading last-seen keeper map header")
	}

	seen := make(map[string]HLC, count)
	for i := uint32(0); i < count; i++ {
		var device string
		device, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, errors.Wrap(err, "syncengine: reading device key")
		}

		fieldCount, rest, err := msgp.ReadMapHeaderBytes(bts)
		if err != nil {
			return bts, errors.Wrap(err, "syncengine: reading hlc map header")
		}
		bts = rest

		var hlc HLC
		for j := uint32(0); j < fieldCount; j++ {
			var field string
			field, bts, err = msgp.ReadStringBytes(bts)
			if err != nil {
				return bts, errors.Wrap(err, "syncengine: reading hlc field name")
			}
			switch field {
			case "physical_ms":
				hlc.PhysicalMS, bts, err = msgp.ReadInt64Bytes(bts)
			case "counter":
				hlc.Counter, bts, err = msgp.ReadUint32Bytes(bts)
			case "device":
				hlc.Device, bts, err = msgp.ReadStringBytes(bts)
			default:
				bts, err = msgp.Skip(bts)
			}
			if err != nil {
				return bts, errors.Wrapf(err, "syncengine: reading hlc field %q", field)
			}
		}
		seen[device] = hlc
	}

	k.seen = seen
	return bts, nil
}

// Receiver pulls backfill pages from a single remote peer over a
// NetworkTransport, applying each page through an Applier and advancing the
// LastSeenKeeper only once a page is fully applied, so a crash mid-page
// re-requests it rather than skipping entries.
type Receiver struct {
	device    string
	transport NetworkTransport
	applier   *Applier
	keeper    *LastSeenKeeper
	pageSize  int
}

// NewReceiver constructs a Receiver for backfilling from device.
func NewReceiver(device string, transport NetworkTransport, applier *Applier, keeper *LastSeenKeeper, pageSize int) *Receiver {
	if pageSize <= 0 {
		pageSize = 256
	}
	return &Receiver{device: device, transport: transport, applier: applier, keeper: keeper, pageSize: pageSize}
}

// backfillRequest/backfillPage are the wire shapes exchanged with a peer's
// sync engine to page through entries after a given HLC.
type backfillRequest struct {
	After HLC `json:"after"`
	Limit int `json:"limit"`
}

type backfillPage struct {
	Entries []IncomingShared `json:"entries"`
	More    bool             `json:"more"`
}

// PullAll requests and applies backfill pages from the peer until it
// reports no more entries remain, or ctx is canceled.
func (r *Receiver) PullAll(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		after := r.keeper.LastSeen(r.device)
		page, more, err := r.pullPage(ctx, after)
		if err != nil {
			return err
		}

		var applied HLC
		for _, entry := range page {
			ok, err := r.applier.ApplyShared(ctx, entry)
			if err != nil {
				return errors.Wrapf(err, "syncengine: applying backfilled %s entry %s", entry.Model, entry.UUID)
			}
			if ok && entry.HLC.After(applied) {
				applied = entry.HLC
			}
		}
		if !applied.IsZero() {
			if err := r.keeper.Record(r.device, applied); err != nil {
				return errors.Wrap(err, "syncengine: recording backfill progress")
			}
		}

		if !more || len(page) == 0 {
			return nil
		}
	}
}

func (r *Receiver) pullPage(ctx context.Context, after HLC) ([]IncomingShared, bool, error) {
	req := backfillRequest{After: after, Limit: r.pageSize}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, false, errors.Wrap(err, "syncengine: marshaling backfill request")
	}

	resp, err := r.transport.SendSyncRequest(ctx, r.device, SyncMessage{Kind: MessageRequest, Payload: payload})
	if err != nil {
		return nil, false, errors.Wrapf(err, "syncengine: requesting backfill page from %s", r.device)
	}
	if resp.Err != "" {
		return nil, false, errors.Errorf("syncengine: peer %s reported backfill error: %s", r.device, resp.Err)
	}

	var page backfillPage
	if err := json.Unmarshal(resp.Payload, &page); err != nil {
		return nil, false, errors.Wrap(err, "syncengine: unmarshaling backfill page")
	}
	return page.Entries, page.More, nil
}
