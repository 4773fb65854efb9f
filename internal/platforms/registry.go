package platforms

import (
	"sort"
	"sync"

	"github.com/starlingpost/starlingpost/internal/domain/social"
)

// Factory construye el adapter de una plataforma.
type Factory func(creds Credentials, opts Options) (Adapter, error)

// Registry resuelve adapters por plataforma. Los adapters se crean la primera
// vez que se piden y después se reutilizan (son stateless y thread-safe).
type Registry struct {
	mu        sync.RWMutex
	factories map[social.Platform]Factory
	creds     map[social.Platform]Credentials
	opts      map[social.Platform]Options
	cache     map[social.Platform]Adapter
}

// NewRegistry crea un registry vacío.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[social.Platform]Factory),
		creds:     make(map[social.Platform]Credentials),
		opts:      make(map[social.Platform]Options),
		cache:     make(map[social.Platform]Adapter),
	}
}

// NewDefaultRegistry registra las seis plataformas con sus credenciales.
func NewDefaultRegistry(creds map[social.Platform]Credentials, opts map[social.Platform]Options) *Registry {
	r := NewRegistry()
	r.RegisterFactory(social.YouTube, NewYouTube)
	r.RegisterFactory(social.Instagram, NewInstagram)
	r.RegisterFactory(social.Twitter, NewTwitter)
	for _, p := range []social.Platform{social.TikTok, social.Pinterest, social.Facebook} {
		p := p
		r.RegisterFactory(p, func(Credentials, Options) (Adapter, error) { return Unimplemented{P: p}, nil })
	}
	for p, c := range creds {
		r.Configure(p, c, opts[p])
	}
	for p, o := range opts {
		if _, ok := creds[p]; !ok {
			r.Configure(p, Credentials{}, o)
		}
	}
	return r
}

// RegisterFactory registra (o reemplaza) la factory de p.
func (r *Registry) RegisterFactory(p social.Platform, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[p] = f
	delete(r.cache, p)
}

// Register fija un adapter ya construido (tests, fakes).
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := a.Platform()
	r.factories[p] = func(Credentials, Options) (Adapter, error) { return a, nil }
	r.cache[p] = a
}

// Configure fija credenciales/opciones de p e invalida el adapter cacheado.
func (r *Registry) Configure(p social.Platform, c Credentials, o Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[p] = c
	r.opts[p] = o
	delete(r.cache, p)
}

// Get retorna el adapter de p. UnknownPlatform si no hay factory.
func (r *Registry) Get(p social.Platform) (Adapter, error) {
	r.mu.RLock()
	if a, ok := r.cache[p]; ok {
		r.mu.RUnlock()
		return a, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.cache[p]; ok {
		return a, nil
	}
	f, ok := r.factories[p]
	if !ok {
		return nil, social.E(social.KindUnknownPlatform, "Registry.Get", p, "platform not registered")
	}
	a, err := f(r.creds[p], r.opts[p])
	if err != nil {
		return nil, err
	}
	r.cache[p] = a
	return a, nil
}

// Resolve parsea el nombre y retorna el adapter.
func (r *Registry) Resolve(raw string) (Adapter, error) {
	p, err := social.ParsePlatform(raw)
	if err != nil {
		return nil, err
	}
	return r.Get(p)
}

// Available lista las plataformas registradas, ordenadas.
func (r *Registry) Available() []social.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]social.Platform, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
