// Package bridge connects remote clients to per-session voice orchestrators.
//
// A client is whatever sits on the other side of a transport: a browser tab
// running a speech engine, a scoreboard, or a device publishing on a message
// bus. The client streams [Command] values in and receives [Message] values
// back. Transports (WebSocket, NATS) only move JSON; sessions, engines and
// scorer plumbing live here so every transport behaves the same.
//
// The client owns the actual recognizer. When the orchestrator starts or
// stops listening, the session sends an engine_start or engine_stop message
// and the client reports recognition results and status changes back as
// commands.
package bridge

import (
	"github.com/MrWong99/courtside/internal/voice/intent"
	"github.com/MrWong99/courtside/internal/voice/orchestrator"
)

// CommandType names an inbound client command.
type CommandType string

const (
	// Speech engine events.
	CmdResult       CommandType = "result"
	CmdInterim      CommandType = "interim"
	CmdEngineStatus CommandType = "engine_status"
	CmdEngineError  CommandType = "engine_error"

	// Match and session control.
	CmdMatch          CommandType = "match"
	CmdStart          CommandType = "start"
	CmdStop           CommandType = "stop"
	CmdToggle         CommandType = "toggle"
	CmdConfirm        CommandType = "confirm"
	CmdCancel         CommandType = "cancel"
	CmdResolve        CommandType = "resolve_conflict"
	CmdCancelConflict CommandType = "cancel_conflict"
	CmdReset          CommandType = "reset"
	CmdState          CommandType = "state"
	CmdClose          CommandType = "close"
)

// Command is one client-to-server message.
type Command struct {
	Type CommandType `json:"type"`

	// Text carries the hypothesis for result and interim, or the error
	// description for engine_error.
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`

	// Listening is the engine status for engine_status.
	Listening bool `json:"listening,omitempty"`

	// Match replaces the match snapshot for match and reset.
	Match *intent.MatchContext `json:"match,omitempty"`

	// Team is the confirmed team for confirm.
	Team intent.Team `json:"team,omitempty"`

	// UseDetectedTeam picks the spoken team over the player's team for
	// resolve_conflict.
	UseDetectedTeam bool `json:"useDetectedTeam,omitempty"`
}

// MessageType names an outbound server message.
type MessageType string

const (
	MsgSession     MessageType = "session"
	MsgEngineStart MessageType = "engine_start"
	MsgEngineStop  MessageType = "engine_stop"
	MsgAction      MessageType = "action"
	MsgNotice      MessageType = "notice"
	MsgHide        MessageType = "hide"
	MsgState       MessageType = "state"
	MsgError       MessageType = "error"
)

// Message is one server-to-client message.
type Message struct {
	Type    MessageType `json:"type"`
	Session string      `json:"session"`

	// Language is the BCP-47 tag the engine should recognize, set on
	// engine_start.
	Language string `json:"language,omitempty"`

	Action *Action              `json:"action,omitempty"`
	Notice *orchestrator.Notice `json:"notice,omitempty"`
	State  *Snapshot            `json:"state,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// ActionKind names a scoring action.
type ActionKind string

const (
	ActionAddPoint      ActionKind = "add_point"
	ActionSubtractPoint ActionKind = "subtract_point"
	ActionUndo          ActionKind = "undo"
	ActionTimeout       ActionKind = "timeout"
	ActionServingTeam   ActionKind = "serving_team"
	ActionSwapSides     ActionKind = "swap_sides"
)

// Action is a scoring command the client applies to its match state.
type Action struct {
	Kind     ActionKind   `json:"kind"`
	Team     intent.Team  `json:"team,omitempty"`
	PlayerID string       `json:"playerId,omitempty"`
	Skill    intent.Skill `json:"skill,omitempty"`
}

// Snapshot is the orchestrator state reported after each control command.
type Snapshot struct {
	State    string                 `json:"state"`
	Pending  *intent.Intent         `json:"pending,omitempty"`
	Conflict *intent.DomainConflict `json:"conflict,omitempty"`
	History  int                    `json:"history"`
}
