//go:build darwin && cgo

package suggest

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework AppKit -framework Foundation

#import <AppKit/AppKit.h>
#include <stdlib.h>
#include <string.h>

// Completions joined by newlines, or NULL when there are none. The caller
// frees the result.
static char *wf_completions(const char *word, const char *lang) {
	@autoreleasepool {
		NSString *w = [NSString stringWithUTF8String:word];
		if (w == nil || [w length] == 0) {
			return NULL;
		}
		NSString *l = nil;
		if (lang != NULL && lang[0] != 0) {
			l = [NSString stringWithUTF8String:lang];
		}
		NSSpellChecker *checker = [NSSpellChecker sharedSpellChecker];
		NSArray<NSString *> *out =
			[checker completionsForPartialWordRange:NSMakeRange(0, [w length])
										   inString:w
										   language:l
							 inSpellDocumentWithTag:0];
		if (out == nil || [out count] == 0) {
			return NULL;
		}
		NSString *joined = [out componentsJoinedByString:@"\n"];
		return strdup([joined UTF8String]);
	}
}
*/
import "C"

import (
	"context"
	"strings"
	"sync"
	"unsafe"
)

type spellChecker struct {
	mu sync.Mutex
}

// System returns the NSSpellChecker completion service.
func System() (Service, error) {
	return &spellChecker{}, nil
}

// checkerLanguage turns a BCP-47 tag into the underscore form AppKit uses.
func checkerLanguage(locale string) string {
	return strings.ReplaceAll(locale, "-", "_")
}

func (s *spellChecker) Suggest(ctx context.Context, word, locale string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cword := C.CString(word)
	defer C.free(unsafe.Pointer(cword))
	clang := C.CString(checkerLanguage(locale))
	defer C.free(unsafe.Pointer(clang))

	// NSSpellChecker is shared process state.
	s.mu.Lock()
	res := C.wf_completions(cword, clang)
	s.mu.Unlock()
	if res == nil {
		return nil, nil
	}
	defer C.free(unsafe.Pointer(res))

	var out []string
	for _, c := range strings.Split(C.GoString(res), "\n") {
		if c != "" && c != word {
			out = append(out, c)
		}
	}
	return out, nil
}
