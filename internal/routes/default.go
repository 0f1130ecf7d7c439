package routes

import "net/http"

// Default is the built-in proxy table. The auth login, refresh and logout
// endpoints are served by dedicated handlers and are not listed here.
func Default() Table {
	return Table{
		{Name: "auth.me", Method: http.MethodGet, Path: "/api/auth/me", Upstream: "/api/auth/me/", PassStatus: true},
		{Name: "auth.register", Method: http.MethodPost, Path: "/api/auth/register", Upstream: "/api/auth/register/", PassStatus: true},
		{Name: "profile.get", Method: http.MethodGet, Path: "/api/profile", Upstream: "/api/users/profile/", PassStatus: true},
		{Name: "profile.update", Method: http.MethodPatch, Path: "/api/profile", Upstream: "/api/users/profile/", PassStatus: true},

		{Name: "tracks.list", Method: http.MethodGet, Path: "/api/tracks", Upstream: "/api/music/tracks/"},
		{Name: "tracks.get", Method: http.MethodGet, Path: "/api/tracks/:id", Upstream: "/api/music/tracks/{id}/", PassStatus: true},
		{Name: "tracks.update", Method: http.MethodPatch, Path: "/api/tracks/:id", Upstream: "/api/music/tracks/{id}/", PassStatus: true},
		{Name: "tracks.delete", Method: http.MethodDelete, Path: "/api/tracks/:id", Upstream: "/api/music/tracks/{id}/", PassStatus: true},
		{Name: "generations.create", Method: http.MethodPost, Path: "/api/music/generate", Upstream: "/api/music/generate/", PassStatus: true},
		{Name: "generations.status", Method: http.MethodGet, Path: "/api/music/generate/:taskId", Upstream: "/api/music/generate/{taskId}/status/"},

		{Name: "voices.list", Method: http.MethodGet, Path: "/api/voice-models", Upstream: "/api/voice-cloning/models/"},
		{Name: "voices.create", Method: http.MethodPost, Path: "/api/voice-models", Upstream: "/api/voice-cloning/models/", PassStatus: true},
		{Name: "voices.get", Method: http.MethodGet, Path: "/api/voice-models/:id", Upstream: "/api/voice-cloning/models/{id}/", PassStatus: true},
		{Name: "voices.delete", Method: http.MethodDelete, Path: "/api/voice-models/:id", Upstream: "/api/voice-cloning/models/{id}/"},
		{Name: "voices.convert", Method: http.MethodPost, Path: "/api/voice-models/:id/convert", Upstream: "/api/voice-cloning/models/{id}/convert/", PassStatus: true},

		{Name: "feed.list", Method: http.MethodGet, Path: "/api/feed", Upstream: "/api/social/feed/"},
		{Name: "posts.create", Method: http.MethodPost, Path: "/api/posts", Upstream: "/api/social/posts/", PassStatus: true},
		{Name: "posts.get", Method: http.MethodGet, Path: "/api/posts/:id", Upstream: "/api/social/posts/{id}/", PassStatus: true},
		{Name: "posts.delete", Method: http.MethodDelete, Path: "/api/posts/:id", Upstream: "/api/social/posts/{id}/"},
		{Name: "posts.like", Method: http.MethodPost, Path: "/api/posts/:id/like", Upstream: "/api/social/posts/{id}/like/"},
		{Name: "posts.unlike", Method: http.MethodDelete, Path: "/api/posts/:id/like", Upstream: "/api/social/posts/{id}/like/"},
		{Name: "comments.list", Method: http.MethodGet, Path: "/api/posts/:id/comments", Upstream: "/api/social/posts/{id}/comments/"},
		{Name: "comments.create", Method: http.MethodPost, Path: "/api/posts/:id/comments", Upstream: "/api/social/posts/{id}/comments/", PassStatus: true},
		{Name: "notifications.list", Method: http.MethodGet, Path: "/api/notifications", Upstream: "/api/notifications/"},
		{Name: "notifications.read", Method: http.MethodPost, Path: "/api/notifications/:id/read", Upstream: "/api/notifications/{id}/read/"},

		{Name: "settings.get", Method: http.MethodGet, Path: "/api/settings", Upstream: "/api/users/settings/"},
		{Name: "settings.update", Method: http.MethodPut, Path: "/api/settings", Upstream: "/api/users/settings/", PassStatus: true},

		{Name: "billing.summary", Method: http.MethodGet, Path: "/api/billing/summary", Upstream: "/api/billing-management/summary/", Dashboard: true},
		{Name: "billing.invoices", Method: http.MethodGet, Path: "/api/billing/invoices", Upstream: "/api/billing-management/invoices/", Dashboard: true},
		{Name: "billing.invoice", Method: http.MethodGet, Path: "/api/billing/invoices/:id", Upstream: "/api/billing-management/invoices/{id}/", PassStatus: true, Dashboard: true},
		{Name: "billing.subscription", Method: http.MethodGet, Path: "/api/billing/subscription", Upstream: "/api/billing/subscription/"},
		{Name: "billing.checkout", Method: http.MethodPost, Path: "/api/billing/checkout", Upstream: "/api/billing/checkout/", PassStatus: true},

		{Name: "moderation.queue", Method: http.MethodGet, Path: "/api/moderation/queue", Upstream: "/api/moderation/queue/", Dashboard: true},
		{Name: "moderation.action", Method: http.MethodPost, Path: "/api/moderation/queue/:id/action", Upstream: "/api/moderation/queue/{id}/action/", PassStatus: true, Dashboard: true},
		{Name: "moderation.reports", Method: http.MethodPost, Path: "/api/reports", Upstream: "/api/moderation/reports/", PassStatus: true},

		{Name: "analytics.overview", Method: http.MethodGet, Path: "/api/analytics/overview", Upstream: "/api/analytics/overview/", Dashboard: true},
		{Name: "analytics.tracks", Method: http.MethodGet, Path: "/api/analytics/tracks/:id", Upstream: "/api/analytics/tracks/{id}/", Dashboard: true},
	}
}
