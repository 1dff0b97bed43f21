package control

import (
	"time"

	"github.com/ctrlr/ctrlr/internal/midi"
	"github.com/ctrlr/ctrlr/internal/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func snapshotFields(s status.Snapshot) map[string]any {
	since := ""
	if !s.Since.IsZero() {
		since = s.Since.Format(time.RFC3339Nano)
	}
	return map[string]any{
		"role":         s.Role,
		"state":        s.State.String(),
		"connected":    s.Connected,
		"peer":         s.Peer,
		"endpoint":     s.Endpoint,
		"source_count": s.SourceCount,
		"rejected":     s.Rejected,
		"discovery":    s.Discovery,
		"since":        since,
	}
}

func encodeSnapshot(s status.Snapshot) (*structpb.Struct, error) {
	return structpb.NewStruct(snapshotFields(s))
}

func decodeSnapshot(pb *structpb.Struct) status.Snapshot {
	f := pb.GetFields()
	state, _ := status.ParseState(f["state"].GetStringValue())
	snap := status.Snapshot{
		Role:        f["role"].GetStringValue(),
		State:       state,
		Connected:   f["connected"].GetBoolValue(),
		Peer:        f["peer"].GetStringValue(),
		Endpoint:    f["endpoint"].GetStringValue(),
		SourceCount: int(f["source_count"].GetNumberValue()),
		Rejected:    int(f["rejected"].GetNumberValue()),
		Discovery:   f["discovery"].GetStringValue(),
	}
	if since := f["since"].GetStringValue(); since != "" {
		snap.Since, _ = time.Parse(time.RFC3339Nano, since)
	}
	return snap
}

func encodeEvent(ev status.Event) (*structpb.Struct, error) {
	fields := snapshotFields(ev.Snapshot)
	if ev.Entry != nil {
		fields["entry"] = map[string]any{
			"time":    ev.Entry.Time.Format(time.RFC3339Nano),
			"level":   string(ev.Entry.Level),
			"message": ev.Entry.Message,
		}
	}
	return structpb.NewStruct(fields)
}

func decodeEvent(pb *structpb.Struct) status.Event {
	ev := status.Event{Snapshot: decodeSnapshot(pb)}
	if entry := pb.GetFields()["entry"].GetStructValue(); entry != nil {
		f := entry.GetFields()
		e := &status.Entry{
			Level:   status.Level(f["level"].GetStringValue()),
			Message: f["message"].GetStringValue(),
		}
		e.Time, _ = time.Parse(time.RFC3339Nano, f["time"].GetStringValue())
		ev.Entry = e
	}
	return ev
}

func encodeLines(lines []string) (*structpb.ListValue, error) {
	values := make([]any, len(lines))
	for i, l := range lines {
		values[i] = l
	}
	return structpb.NewList(values)
}

func decodeLines(pb *structpb.ListValue) []string {
	out := make([]string, 0, len(pb.GetValues()))
	for _, v := range pb.GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}

func encodeTargets(infos []midi.Info) (*structpb.ListValue, error) {
	values := make([]any, len(infos))
	for i, info := range infos {
		values[i] = map[string]any{
			"id":       info.ID,
			"name":     info.Name,
			"selected": info.Selected,
		}
	}
	return structpb.NewList(values)
}

func decodeTargets(pb *structpb.ListValue) []midi.Info {
	out := make([]midi.Info, 0, len(pb.GetValues()))
	for _, v := range pb.GetValues() {
		f := v.GetStructValue().GetFields()
		out = append(out, midi.Info{
			ID:       f["id"].GetStringValue(),
			Name:     f["name"].GetStringValue(),
			Selected: f["selected"].GetBoolValue(),
		})
	}
	return out
}
