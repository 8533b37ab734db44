// Package services holds the application services: template store, step
// collections, entities and notifications. They depend on the ports in
// internal/domain/ports and are wired together by ServiceManager.
package services
