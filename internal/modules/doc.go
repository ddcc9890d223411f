/*
Package modules resolves, guards and caches the modules a sandboxed runtime
imports.

Every import passes through the same pipeline:

 1. Classify the raw specifier. Only "./" and "../" specifiers are accepted;
    anything with a URL scheme is a remote import and is rejected.
 2. Resolve it against the importing module's path, purely lexically.
 3. Check that the result stays inside the module root. Under the default
    LinksContain policy symbolic links are resolved first.
 4. Check it against the include patterns.
 5. Load it through the Cache, which evaluates each canonical path at most
    once and hands cyclic importers the partially initialised record.

Nothing is read from disk until steps 1 to 4 have passed. The entry module is
trusted and skips them.

A Loader owns its Cache. Runtimes never share one.
*/
package modules
