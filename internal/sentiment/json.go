package sentiment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	commonTopicsKey = "Common Topics"
	uniqueKeyPrefix = "Unique Topics in Article "
)

// UniqueKey returns the report key for the 1-based article index.
func UniqueKey(index int) string {
	return uniqueKeyPrefix + strconv.Itoa(index)
}

// MarshalJSON writes the overlap as an object with a "Common Topics" entry
// followed by one "Unique Topics in Article N" entry per enumerated slot, in
// slot order.
func (o TopicOverlap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	common := o.CommonTopics
	if common == nil {
		common = []string{}
	}
	if err := writeEntry(&buf, commonTopicsKey, common); err != nil {
		return nil, err
	}

	indexes := make([]int, 0, len(o.Unique))
	for i := range o.Unique {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	for _, i := range indexes {
		topics := o.Unique[i]
		if topics == nil {
			topics = []string{}
		}
		buf.WriteByte(',')
		if err := writeEntry(&buf, UniqueKey(i), topics); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeEntry(buf *bytes.Buffer, key string, topics []string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(topics)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (o *TopicOverlap) UnmarshalJSON(data []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	o.CommonTopics = raw[commonTopicsKey]
	o.Unique = make(map[int][]string)
	for k, v := range raw {
		if !strings.HasPrefix(k, uniqueKeyPrefix) {
			continue
		}
		i, err := strconv.Atoi(strings.TrimPrefix(k, uniqueKeyPrefix))
		if err != nil {
			return fmt.Errorf("invalid unique topics key %q", k)
		}
		o.Unique[i] = v
	}
	return nil
}
