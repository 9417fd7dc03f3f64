package scraper

// the weibo scrapers in this repo are read-only, each method is independent of
// the others and its output depends solely on the input page.
// EXCEPT for the login state, the cookie is an implied input for every fetch
// and a logged-out session silently changes what the server renders.

// each scraping method generally has this structure:
// 1. make assertions on input validity.
// 2. transform input into an HTTP request (url, headers, form body).
// 3. make the request.
// 4. make assertions on response validity (status, login marker, body type).
// 5. transform the response body into an output structure.

// the transform step takes two shapes here:
//   -> goquery selectors into a struct or slices of structs, when the page is
//      well-formed server-rendered HTML (search result cards)
//   -> regex slicing, when the target sits inside inline script blocks or
//      half-escaped JSON (video player metadata, the ai-search card)

// the services layer is then the code that guides the program through
// acquiring all the information wanted in the representation wanted, combining
// the scraping methods into one data model.
