package translation

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-widget/internal/system/error/codes"
	"github.com/wso2/consent-widget/internal/system/error/serviceerror"
)

type stringKey struct {
	lang   string
	source string
}

// Service resolves widget vocabulary and dynamic content into a target
// language. Caches live for the session only; nothing persists across a
// page reload.
type Service struct {
	client *Client
	base   string
	vocab  map[string]string
	logger *logrus.Logger

	mutex      sync.Mutex
	inProgress bool
	bundles    map[string]map[string]string
	strings    map[stringKey]string
}

// NewService creates a translation service. vocab is the static base
// UI vocabulary keyed by message key; base is its language code.
func NewService(client *Client, base string, vocab map[string]string, logger *logrus.Logger) *Service {
	return &Service{
		client:  client,
		base:    base,
		vocab:   vocab,
		logger:  logger,
		bundles: make(map[string]map[string]string),
		strings: make(map[stringKey]string),
	}
}

// BeginRebuild marks a language rebuild in progress. It returns a
// TranslationInProgress error when another rebuild is already running;
// the caller must disable language-switch input until EndRebuild.
func (s *Service) BeginRebuild() *serviceerror.ServiceError {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.inProgress {
		return &serviceerror.TranslationInProgressError
	}
	s.inProgress = true
	return nil
}

// EndRebuild clears the in-progress guard.
func (s *Service) EndRebuild() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.inProgress = false
}

// Bundle returns the full UI vocabulary in lang. The base language is
// returned from the static vocabulary with no network call; other
// languages are resolved with one batched call and then cached for the
// session.
func (s *Service) Bundle(ctx context.Context, lang string) map[string]string {
	if lang == "" || lang == s.base {
		return copyBundle(s.vocab)
	}

	s.mutex.Lock()
	if cached, found := s.bundles[lang]; found {
		s.mutex.Unlock()
		return copyBundle(cached)
	}
	s.mutex.Unlock()

	keys := make([]string, 0, len(s.vocab))
	for key := range s.vocab {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	texts := make([]string, len(keys))
	for i, key := range keys {
		texts[i] = s.vocab[key]
	}

	translations, err := s.client.BatchTranslate(ctx, texts, lang, s.base)
	if err != nil {
		// Whole-batch failure: serve the base vocabulary rather than
		// blank the widget. The failed language is not cached so a
		// later attempt can retry.
		s.logger.WithError(err).WithFields(logrus.Fields{
			"lang": lang,
			"code": codes.TranslationFailed,
		}).Warn("Vocabulary translation failed; using base language")
		return copyBundle(s.vocab)
	}

	bundle := make(map[string]string, len(keys))
	for i, key := range keys {
		bundle[key] = pickTranslation(translations, i, s.vocab[key])
	}

	s.mutex.Lock()
	s.bundles[lang] = bundle
	s.mutex.Unlock()
	return copyBundle(bundle)
}

// Rebuild resolves the UI vocabulary and the render's dynamic strings
// in lang with at most one network call: vocabulary misses and dynamic
// misses travel in the same batch. A re-render in an already-seen
// language costs zero calls.
func (s *Service) Rebuild(ctx context.Context, lang string, dynamic []string) (map[string]string, []string) {
	translated := make([]string, len(dynamic))
	if lang == "" || lang == s.base {
		copy(translated, dynamic)
		return copyBundle(s.vocab), translated
	}

	var keys []string
	s.mutex.Lock()
	bundle := s.bundles[lang]
	if bundle == nil {
		keys = make([]string, 0, len(s.vocab))
		for key := range s.vocab {
			keys = append(keys, key)
		}
		sort.Strings(keys)
	}
	missing := make([]string, 0, len(dynamic))
	missingIndex := make([]int, 0, len(dynamic))
	for i, text := range dynamic {
		if text == "" {
			continue
		}
		if cached, found := s.strings[stringKey{lang, text}]; found {
			translated[i] = cached
		} else {
			missing = append(missing, text)
			missingIndex = append(missingIndex, i)
		}
	}
	s.mutex.Unlock()

	if bundle != nil && len(missing) == 0 {
		return copyBundle(bundle), translated
	}

	batch := make([]string, 0, len(keys)+len(missing))
	for _, key := range keys {
		batch = append(batch, s.vocab[key])
	}
	batch = append(batch, missing...)

	translations, err := s.client.BatchTranslate(ctx, batch, lang, s.base)
	if err != nil {
		// Whole-batch failure: base vocabulary and source text, with
		// nothing cached so a later rebuild can retry.
		s.logger.WithError(err).WithFields(logrus.Fields{
			"lang": lang,
			"code": codes.TranslationFailed,
		}).Warn("Rebuild translation failed; using source text")
		for _, i := range missingIndex {
			translated[i] = dynamic[i]
		}
		if bundle == nil {
			return copyBundle(s.vocab), translated
		}
		return copyBundle(bundle), translated
	}

	if bundle == nil {
		bundle = make(map[string]string, len(keys))
		for i, key := range keys {
			bundle[key] = pickTranslation(translations, i, s.vocab[key])
		}
	}

	s.mutex.Lock()
	if _, found := s.bundles[lang]; !found {
		s.bundles[lang] = bundle
	}
	for j, i := range missingIndex {
		value := pickTranslation(translations, len(keys)+j, missing[j])
		translated[i] = value
		s.strings[stringKey{lang, missing[j]}] = value
	}
	s.mutex.Unlock()
	return copyBundle(bundle), translated
}

// TranslateAll resolves arbitrary dynamic strings (activity names,
// purpose names, category labels) into lang. Cached strings are served
// from the session cache; the misses go out in one batched call. Items
// that fail to translate fall back to their source text individually.
func (s *Service) TranslateAll(ctx context.Context, lang string, texts []string) []string {
	results := make([]string, len(texts))
	if lang == "" || lang == s.base {
		copy(results, texts)
		return results
	}

	missing := make([]string, 0, len(texts))
	missingIndex := make([]int, 0, len(texts))

	s.mutex.Lock()
	for i, text := range texts {
		if text == "" {
			results[i] = ""
			continue
		}
		if cached, found := s.strings[stringKey{lang, text}]; found {
			results[i] = cached
		} else {
			missing = append(missing, text)
			missingIndex = append(missingIndex, i)
		}
	}
	s.mutex.Unlock()

	if len(missing) == 0 {
		return results
	}

	translations, err := s.client.BatchTranslate(ctx, missing, lang, s.base)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"lang": lang,
			"code": codes.TranslationFailed,
		}).Warn("Dynamic translation failed; falling back to source text")
		for _, i := range missingIndex {
			results[i] = texts[i]
		}
		return results
	}

	s.mutex.Lock()
	for j, i := range missingIndex {
		translated := pickTranslation(translations, j, missing[j])
		results[i] = translated
		s.strings[stringKey{lang, missing[j]}] = translated
	}
	s.mutex.Unlock()
	return results
}

// pickTranslation falls back to the source text when one item in the
// batch came back empty or missing. A partial failure must never blank
// content.
func pickTranslation(translations []string, i int, source string) string {
	if i < len(translations) && translations[i] != "" {
		return translations[i]
	}
	return source
}

func copyBundle(bundle map[string]string) map[string]string {
	copied := make(map[string]string, len(bundle))
	for key, value := range bundle {
		copied[key] = value
	}
	return copied
}
