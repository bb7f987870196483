// Package memory holds the whole fleet state of a single-instance deployment
// in process memory: one owning map per entity kind plus secondary indices,
// guarded by a single reader-writer lock. Every mutation emits its domain
// events synchronously after the lock is released.
package memory

import (
	"sync"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
)

const DefaultCertificatesMax = 1000

type Store struct {
	mu sync.RWMutex

	bus             storage.Emitter
	certificatesMax int

	users         map[string]*domain.User
	userIDByEmail map[string]string

	projects         map[string]*domain.Project
	projectIDByName  map[string]string
	projectIDByToken map[string]string
	windows          map[string]map[string]*domain.Window

	credentials          map[string]*domain.Credential
	credentialsByProject map[string]map[string]struct{}

	connectors          map[string]*domain.Connector
	connectorsByProject map[string]map[string]struct{}

	proxies            map[string]*domain.Proxy
	proxiesByProject   map[string]map[string]struct{}
	proxiesByConnector map[string]map[string]struct{}

	freeproxies            map[string]*domain.Freeproxy
	freeproxiesByProject   map[string]map[string]struct{}
	freeproxiesByConnector map[string]map[string]struct{}

	sources            map[string]*domain.Source
	sourcesByConnector map[string]map[string]struct{}

	tasks          map[string]*domain.Task
	tasksByProject map[string]map[string]struct{}

	params       map[string]string
	certificates map[string]domain.Certificate
}

var _ storage.Store = (*Store)(nil)

func New(bus storage.Emitter, certificatesMax int) *Store {
	if bus == nil {
		bus = storage.NopEmitter{}
	}
	if certificatesMax <= 0 {
		certificatesMax = DefaultCertificatesMax
	}

	return &Store{
		bus:             bus,
		certificatesMax: certificatesMax,

		users:         map[string]*domain.User{},
		userIDByEmail: map[string]string{},

		projects:         map[string]*domain.Project{},
		projectIDByName:  map[string]string{},
		projectIDByToken: map[string]string{},
		windows:          map[string]map[string]*domain.Window{},

		credentials:          map[string]*domain.Credential{},
		credentialsByProject: map[string]map[string]struct{}{},

		connectors:          map[string]*domain.Connector{},
		connectorsByProject: map[string]map[string]struct{}{},

		proxies:            map[string]*domain.Proxy{},
		proxiesByProject:   map[string]map[string]struct{}{},
		proxiesByConnector: map[string]map[string]struct{}{},

		freeproxies:            map[string]*domain.Freeproxy{},
		freeproxiesByProject:   map[string]map[string]struct{}{},
		freeproxiesByConnector: map[string]map[string]struct{}{},

		sources:            map[string]*domain.Source{},
		sourcesByConnector: map[string]map[string]struct{}{},

		tasks:          map[string]*domain.Task{},
		tasksByProject: map[string]map[string]struct{}{},

		params:       map[string]string{},
		certificates: map[string]domain.Certificate{},
	}
}

func (s *Store) emit(events []domain.Event) {
	for _, event := range events {
		s.bus.Emit(event)
	}
}

func addIndex(index map[string]map[string]struct{}, key, id string) {
	set, ok := index[key]
	if !ok {
		set = map[string]struct{}{}
		index[key] = set
	}
	set[id] = struct{}{}
}

func removeIndex(index map[string]map[string]struct{}, key, id string) {
	if set, ok := index[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(index, key)
		}
	}
}
