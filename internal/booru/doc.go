// Package booru provides an HTTP client for the Rikibooru catalog API.
//
// # Endpoints
//
//   - GET {base}/metadata: tag taxonomy, decoded into Taxonomy
//   - GET {base}/getRandomArt={seq}: one image by catalog sequence position
//   - GET {base}/queryImages?query=...: catalog search
//   - GET {base}/getImagesFromVkPost?link=...: every image of a source post
//   - GET {linktopic}: raw image bytes
//
// Every request waits on a token-bucket limiter, sends a descriptive
// User-Agent and treats any status other than 200 as an error. JSON payloads
// are decoded into explicit types; a taxonomy or image that does not match the
// expected shape fails with ErrMalformedResponse instead of propagating
// half-decoded data.
//
// # Error Handling
//
// Errors are wrapped with the operation that failed:
//
//   - "fetch taxonomy: execute request: dial tcp: connection refused"
//   - "fetch image 41: booru /rikibooru/getRandomArt=41 returned status 500: ..."
//   - "fetch image 41: booru image not found"
//
// The client never retries; callers decide whether a failure is fatal.
package booru
