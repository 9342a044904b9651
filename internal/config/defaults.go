package config

// Documented default documents written on first run so the user has
// something to edit. Values mirror the in-memory defaults.

const defaultAppYAML = `# intentd app settings
#
# default_duration_minutes: duration offered when starting an intention
# warning_before_end_minutes: fire the "session ending" warning this
#   many minutes before a timed intention expires
# unlimited_checkin_minutes: for unlimited intentions, require a
#   checkin acknowledgment this often
# break_glass_phrase: the exact phrase required to override a block
# focus_reassert_delay_ms: delay before refocusing after a block prompt
# companion_port: loopback port for the browser companion
# llm_provider / llm_model / llm_api_key_env: semantic classifier knobs
#   (leave provider empty to disable)

default_duration_minutes: 25
warning_before_end_minutes: 5
unlimited_checkin_minutes: 30
break_glass_phrase: "I am choosing distraction"
focus_reassert_delay_ms: 400
companion_port: 42007
llm_provider: ""
llm_model: ""
llm_api_key_env: "INTENTD_LLM_API_KEY"
theme: system
`

const defaultRulesYAML = `# intentd rules
#
# always_allowed_* and always_blocked_* apply before any intention
# logic. URLs use substring matching after stripping scheme and www.
#
# intention_rules allow extra apps/URLs when any |-separated keyword
# appears in the intention text (substring match).

always_allowed_apps:
  - intentd

always_allowed_urls: []

always_blocked_apps: []

always_blocked_urls: []

intention_rules: []
#  - pattern: "write|design"
#    allow_apps: ["Obsidian"]
#    allow_urls: ["docs.google.com"]
`

const defaultBundlesYAML = `# intentd bundles
#
# Bundles declared here are synced into storage additively on startup:
# a bundle whose name already exists is left untouched, so edits made
# in the UI win over this file.
#
# url_patterns are anchored globs: "github.com/*" matches the whole
# URL, not a substring.

bundles: []
#  - name: Deep Work
#    apps:
#      - id: Obsidian
#        name: Obsidian
#    url_patterns:
#      - "github.com/*"
`
