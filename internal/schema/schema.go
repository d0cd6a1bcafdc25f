// Package schema names the physical tables and procedures behind each
// logical entity. Deployments differ in which of them exist, so names can be
// overridden from a YAML file.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source tags which table family produced a row.
type Source string

const (
	SourceLegacy Source = "legacy"
	SourceV2     Source = "v2"
)

// Other returns the opposite family.
func (s Source) Other() Source {
	if s == SourceV2 {
		return SourceLegacy
	}
	return SourceV2
}

// Family is one generation of the radar tables.
type Family struct {
	Events              string   `yaml:"events"`
	EventColumns        []string `yaml:"event_columns"`
	EventColumnsReduced []string `yaml:"event_columns_reduced"`

	Participants              string   `yaml:"participants"`
	ParticipantColumns        []string `yaml:"participant_columns"`
	ParticipantColumnsReduced []string `yaml:"participant_columns_reduced"`

	JoinRPC          string `yaml:"join_rpc"`
	LeaveRPC         string `yaml:"leave_rpc"`
	RespondInviteRPC string `yaml:"respond_invite_rpc"`

	// ChatRooms / ChatMembers / ChatRoomKey describe the chat bridged to a
	// radar of this family.
	ChatRooms   string `yaml:"chat_rooms"`
	ChatMembers string `yaml:"chat_members"`
	ChatRoomKey string `yaml:"chat_room_key"`
}

// Schema is the full set of names.
type Schema struct {
	Legacy Family `yaml:"legacy"`
	V2     Family `yaml:"v2"`

	Invites        string `yaml:"invites"`
	Notifications  string `yaml:"notifications"`
	Profiles       string `yaml:"profiles"`
	Churches       string `yaml:"churches"`
	Dioceses       string `yaml:"dioceses"`
	SendInviteRPC  string `yaml:"send_invite_rpc"`
	GroupInviteRPC string `yaml:"group_invite_rpc"`

	CheckIns       string `yaml:"check_ins"`
	ChurchCheckIns string `yaml:"church_check_ins"`
}

// Family returns the names for src.
func (s *Schema) Family(src Source) Family {
	if src == SourceV2 {
		return s.V2
	}
	return s.Legacy
}

// ParticipantTables lists participant tables in write order for src: its own
// family first, then the other.
func (s *Schema) ParticipantTables(src Source) []TableRef {
	return []TableRef{
		{Source: src, Table: s.Family(src).Participants},
		{Source: src.Other(), Table: s.Family(src.Other()).Participants},
	}
}

// TableRef is a table tagged with its family.
type TableRef struct {
	Source Source
	Table  string
}

var (
	eventColumns = []string{
		"id", "title", "description", "starts_at", "max_participants", "church_id", "church_name",
		"creator_id", "allow_member_invite", "require_host_approval", "status", "visibility", "cover_url", "created_at",
	}
	eventColumnsReduced = []string{"id", "title", "starts_at", "max_participants", "creator_id", "status", "created_at"}

	participantColumns = []string{
		"id", "radar_id", "user_id", "status", "role", "created_at", "joined_at", "display_name", "avatar_url",
	}
	participantColumnsReduced = []string{"id", "radar_id", "user_id", "status", "created_at"}
)

// Default returns the names used when no override file is given.
func Default() *Schema {
	return &Schema{
		Legacy: Family{
			Events:                    "radar_events",
			EventColumns:              eventColumns,
			EventColumnsReduced:       eventColumnsReduced,
			Participants:              "radar_participants",
			ParticipantColumns:        participantColumns,
			ParticipantColumnsReduced: participantColumnsReduced,
			JoinRPC:                   "radar_join_event",
			LeaveRPC:                  "radar_leave_event",
			RespondInviteRPC:          "radar_respond_invite",
			ChatRooms:                 "chat_rooms",
			ChatMembers:               "chat_room_members",
			ChatRoomKey:               "room_id",
		},
		V2: Family{
			Events:                    "radar_v2_events",
			EventColumns:              eventColumns,
			EventColumnsReduced:       eventColumnsReduced,
			Participants:              "radar_v2_participants",
			ParticipantColumns:        participantColumns,
			ParticipantColumnsReduced: participantColumnsReduced,
			JoinRPC:                   "radar_v2_join_event",
			LeaveRPC:                  "radar_v2_leave_event",
			RespondInviteRPC:          "radar_v2_respond_invite",
			ChatRooms:                 "chat_groups",
			ChatMembers:               "chat_group_members",
			ChatRoomKey:               "group_id",
		},
		Invites:        "radar_invites",
		Notifications:  "notifications",
		Profiles:       "profiles",
		Churches:       "churches",
		Dioceses:       "dioceses",
		SendInviteRPC:  "send_radar_invite",
		GroupInviteRPC: "radar_send_group_invite",
		CheckIns:       "check_ins",
		ChurchCheckIns: "church_check_ins",
	}
}

// Load reads path over the defaults. Keys absent from the file keep their
// default value.
func Load(path string) (*Schema, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}
	return s, nil
}
