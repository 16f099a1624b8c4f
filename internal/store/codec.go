package store

import (
	"encoding/json"

	"github.com/command-center/hive/internal/model"
)

func unmarshalExploration(e *model.Exploration, claims, evidence, followUps []byte) error {
	for _, f := range []struct {
		raw  []byte
		dest any
	}{
		{claims, &e.Claims},
		{evidence, &e.Evidence},
		{followUps, &e.FollowUps},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return err
		}
	}
	return nil
}

func marshalBriefingLists(b *model.Briefing) (findings, gaps, actions []byte, err error) {
	lists := [3][]string{b.KeyFindings, b.Gaps, b.NextActions}
	var out [3][]byte
	for i, l := range lists {
		if l == nil {
			l = []string{}
		}
		if out[i], err = json.Marshal(l); err != nil {
			return nil, nil, nil, err
		}
	}
	return out[0], out[1], out[2], nil
}

func unmarshalBriefingLists(b *model.Briefing, findings, gaps, actions []byte) error {
	return unmarshalLists(
		[]*[]string{&b.KeyFindings, &b.Gaps, &b.NextActions},
		[][]byte{findings, gaps, actions},
	)
}

func unmarshalLists(dests []*[]string, raws [][]byte) error {
	for i, raw := range raws {
		*dests[i] = []string{}
		if len(raw) == 0 {
			continue
		}
		if err := json.Unmarshal(raw, dests[i]); err != nil {
			return err
		}
	}
	return nil
}
