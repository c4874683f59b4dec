package awsiot

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidTopicName   = errors.New("invalid topic name")
	ErrInvalidTopicFilter = errors.New("invalid topic filter")
	ErrEmptyTopic         = errors.New("topic cannot be empty")
)

const (
	topicSeparator      = '/'
	singleLevelWildcard = '+'
	multiLevelWildcard  = '#'

	// MaxTopicLength is the AWS IoT limit on topic name length in bytes.
	MaxTopicLength = 256
)

// ValidateTopicName validates a topic name used for publishing.
// Topic names cannot contain wildcards and must be valid UTF-8.
func ValidateTopicName(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	if len(topic) > MaxTopicLength || !utf8.ValidString(topic) {
		return ErrInvalidTopicName
	}

	for _, r := range topic {
		if r == 0 || r == singleLevelWildcard || r == multiLevelWildcard {
			return ErrInvalidTopicName
		}
	}

	return nil
}

// ValidateTopicFilter validates a subscription topic filter.
// A wildcard must occupy a whole level and '#' must be the last level.
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return ErrEmptyTopic
	}

	if len(filter) > MaxTopicLength || !utf8.ValidString(filter) {
		return ErrInvalidTopicFilter
	}

	if strings.IndexByte(filter, 0) >= 0 {
		return ErrInvalidTopicFilter
	}

	levels := strings.Split(filter, string(topicSeparator))
	for i, level := range levels {
		if strings.ContainsRune(level, singleLevelWildcard) && level != string(singleLevelWildcard) {
			return ErrInvalidTopicFilter
		}

		if strings.ContainsRune(level, multiLevelWildcard) {
			if level != string(multiLevelWildcard) || i != len(levels)-1 {
				return ErrInvalidTopicFilter
			}
		}
	}

	return nil
}

// TopicMatch reports whether a topic name matches a topic filter.
// Reserved topics ($aws/...) never match a wildcard in the first level.
func TopicMatch(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}

	if topic[0] == '$' && (filter[0] == singleLevelWildcard || filter[0] == multiLevelWildcard) {
		return false
	}

	fi, ti := 0, 0
	flen, tlen := len(filter), len(topic)

	for fi < flen {
		fstart := fi
		for fi < flen && filter[fi] != topicSeparator {
			fi++
		}
		flevel := filter[fstart:fi]

		if flevel == "#" {
			return true
		}

		if ti > tlen {
			return false
		}

		tstart := ti
		for ti < tlen && topic[ti] != topicSeparator {
			ti++
		}
		tlevel := topic[tstart:ti]

		if flevel != "+" && flevel != tlevel {
			return false
		}

		// step over the separator; ti may move past tlen when the topic ran out
		fi++
		ti++
	}

	return ti > tlen
}

// ContainsWildcard reports whether a topic filter contains '+' or '#'.
func ContainsWildcard(filter string) bool {
	return strings.ContainsAny(filter, "#+")
}

// TopicSegment returns the level of topic at index i (zero based).
// A topic with fewer levels yields ("", false) instead of failing.
func TopicSegment(topic string, i int) (string, bool) {
	if i < 0 {
		return "", false
	}

	for level := 0; ; level++ {
		end := strings.IndexByte(topic, topicSeparator)
		if level == i {
			if end < 0 {
				return topic, true
			}
			return topic[:end], true
		}
		if end < 0 {
			return "", false
		}
		topic = topic[end+1:]
	}
}

// JoinTopic joins topic levels with '/'.
func JoinTopic(levels ...string) string {
	return strings.Join(levels, string(topicSeparator))
}
