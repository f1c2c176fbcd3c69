package quality

import(
	"fmt"
	"sort"
)

// A Registry maps method names to factories. Build one with
// NewRegistry and hand it to whatever needs to create methods.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry holding all the built-in methods.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}

	builtins := []struct{
		name string
		f    Factory
	}{
		{"darkest",               NewDarkest},
		{"greenest",              NewGreenest},
		{"reddest",               NewReddest},
		{"landsat8",              NewLandsat8Cloud},
		{"landsat8snow",          NewLandsat8Snow},
		{"landsat8cirrus",        NewLandsat8Cirrus},
		{"landsat8sr",            NewLandsat8SR},
		{"landsat8_cfmask",       NewLandsat8CFMask},
		{"landsat8_cfmask_cloud", NewLandsat8CFMaskCloud},
		{"percentile",            NewPercentile},
		{"samesource",            NewSameSource},
		{"scenemeasure",          NewSceneMeasure},
		{"scene_measure",         NewSceneMeasure},
		{"qualityfromfile",       NewQualityFromFile},
	}
	for _, b := range builtins {
		if err := r.Register(b.name, b.f); err != nil {
			panic(err) // only possible if the list above has a dupe
		}
	}

	return r
}

func (r *Registry)Register(name string, f Factory) error {
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("quality method '%s' already registered", name)
	}
	r.factories[name] = f
	return nil
}

func (r *Registry)Create(name string, ctx Context, params Params) (Method, error) {
	f, exists := r.factories[name]
	if !exists {
		return nil, SetupErrorf("no quality method named '%s' (have: %v)", name, r.Names())
	}
	if params == nil {
		params = Params{}
	}

	m, err := f(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("quality method '%s': %w", name, err)
	}
	return m, nil
}

func (r *Registry)Names() []string {
	names := []string{}
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
