// Package types defines the backlog entities (projects, epics, features,
// stories, tasks, sprints and sprint memberships), the Store adapter
// interfaces consumed by the services, and the standard sentinel errors.
package types
