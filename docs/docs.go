// Package docs registers the swagger document served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/radars": {"post": {"tags": ["radars"], "summary": "Create a radar"}},
        "/radars/mine": {"get": {"tags": ["radars"], "summary": "My radar memberships"}},
        "/radars/{id}": {"get": {"tags": ["radars"], "summary": "Get radar by ID"}},
        "/radars/{id}/participants": {"get": {"tags": ["radars"], "summary": "List effective participants"}},
        "/radars/{id}/membership": {"get": {"tags": ["radars"], "summary": "My membership in a radar"}},
        "/radars/{id}/join": {"post": {"tags": ["radars"], "summary": "Join a radar"}},
        "/radars/{id}/leave": {"post": {"tags": ["radars"], "summary": "Leave a radar"}},
        "/radars/{id}/participants/{userId}/approve": {"post": {"tags": ["radars"], "summary": "Approve a join request"}},
        "/radars/{id}/participants/{userId}/reject": {"post": {"tags": ["radars"], "summary": "Reject a join request"}},
        "/invites": {"get": {"tags": ["invites"], "summary": "Invite inbox"}},
        "/invites/sent": {"get": {"tags": ["invites"], "summary": "Sent invites"}},
        "/invites/personal": {"post": {"tags": ["invites"], "summary": "Send a personal invite"}},
        "/invites/group": {"post": {"tags": ["invites"], "summary": "Invite to a radar"}},
        "/invites/{id}/accept": {"post": {"tags": ["invites"], "summary": "Accept an invite"}},
        "/invites/{id}/decline": {"post": {"tags": ["invites"], "summary": "Decline an invite"}},
        "/invites/{id}/cancel": {"post": {"tags": ["invites"], "summary": "Cancel a sent invite"}},
        "/notifications": {"get": {"tags": ["notifications"], "summary": "List my notifications"}},
        "/notifications/unread-count": {"get": {"tags": ["notifications"], "summary": "Count unread notifications"}},
        "/notifications/{id}/read": {"post": {"tags": ["notifications"], "summary": "Mark a notification read"}},
        "/notifications/read-all": {"post": {"tags": ["notifications"], "summary": "Mark all notifications read"}},
        "/profiles/me": {"get": {"tags": ["profiles"], "summary": "My profile"}},
        "/profiles/{id}": {"get": {"tags": ["profiles"], "summary": "Get profile by ID"}},
        "/checkins": {"post": {"tags": ["checkins"], "summary": "Check in at a church"}},
        "/checkins/active": {"get": {"tags": ["checkins"], "summary": "Current check-in"}},
        "/media/radars/{id}/cover": {"post": {"tags": ["media"], "summary": "Upload a radar cover image"}},
        "/activity/{id}": {"get": {"tags": ["activity"], "summary": "Recent radar events"}}
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Radar API",
	Description:      "Radar membership and invitation service",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
